package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"marketing_post_refiner/generator"
	"marketing_post_refiner/trace"
)

// Config is the whole application config. JSON files load too, since JSON
// is valid YAML.
type Config struct {
	LLM         LLMConfig        `yaml:"llm"`
	Workflow    generator.Config `yaml:"workflow"`
	Trace       TraceConfig      `yaml:"trace"`
	StyleGuides StyleGuideConfig `yaml:"style_guides"`
	Store       StoreConfig      `yaml:"store"`
	Reports     ReportsConfig    `yaml:"reports"`
	Server      ServerConfig     `yaml:"server"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// LLMConfig 生成模块的模型配置。
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

type TraceConfig struct {
	TokensPerStep int     `yaml:"tokens_per_step"`
	CostPer1K     float64 `yaml:"cost_per_1k"`
}

type StyleGuideConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

type ServerConfig struct {
	Addr              string `yaml:"addr"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	MaxSessions       int    `yaml:"max_sessions"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

var providers = map[string]bool{"openai": true, "deepseek": true, "mock": true}

// Default returns a config that runs offline with the mock backend.
func Default() Config {
	cost := trace.DefaultCostModel()
	return Config{
		LLM: LLMConfig{
			Provider:  "mock",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Workflow:    generator.DefaultConfig(),
		Trace:       TraceConfig{TokensPerStep: cost.TokensPerStep, CostPer1K: cost.CostPer1K},
		StyleGuides: StyleGuideConfig{Dir: "brand_voices"},
		Store:       StoreConfig{Path: "data/history.db"},
		Reports:     ReportsConfig{Dir: "reports"},
		Server:      ServerConfig{Addr: ":8080", RequestTimeoutSec: 120, MaxSessions: 256},
		Logging:     LoggingConfig{Level: "info"},
	}
}

// Load reads path over Default. A missing file is an error; use Default
// directly when no config is wanted.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ResolveAPIKey()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolveAPIKey fills LLM.APIKey from the environment when it is empty.
func (c *Config) ResolveAPIKey() {
	if c.LLM.APIKey == "" && c.LLM.APIKeyEnv != "" {
		c.LLM.APIKey = os.Getenv(c.LLM.APIKeyEnv)
	}
}

func (c Config) Validate() error {
	var errs []error
	if !providers[strings.ToLower(c.LLM.Provider)] {
		errs = append(errs, fmt.Errorf("llm.provider %q not supported", c.LLM.Provider))
	}
	if err := c.Workflow.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Trace.TokensPerStep < 0 {
		errs = append(errs, errors.New("trace.tokens_per_step must not be negative"))
	}
	if c.Trace.CostPer1K < 0 {
		errs = append(errs, errors.New("trace.cost_per_1k must not be negative"))
	}
	if c.Server.RequestTimeoutSec < 0 {
		errs = append(errs, errors.New("server.request_timeout_sec must not be negative"))
	}
	if c.Server.MaxSessions < 0 {
		errs = append(errs, errors.New("server.max_sessions must not be negative"))
	}
	return errors.Join(errs...)
}

// CostModel converts the trace section for trace.WithCostModel.
func (c Config) CostModel() trace.CostModel {
	return trace.CostModel{TokensPerStep: c.Trace.TokensPerStep, CostPer1K: c.Trace.CostPer1K}
}

// LLMSettings converts the llm section for generator.NewOpenAILLMFromConfig.
func (c Config) LLMSettings() *generator.LLMSettings {
	return &generator.LLMSettings{
		Provider: strings.ToLower(c.LLM.Provider),
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
	}
}
