package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"marketing_post_refiner/config"
	"marketing_post_refiner/generator"
	"marketing_post_refiner/logging"
	"marketing_post_refiner/research"
	"marketing_post_refiner/store"
	"marketing_post_refiner/styleguide"
)

const version = "0.3.0"

var (
	configPath string
	logLevel   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "refiner",
	Short:         "Quality-gated marketing post generator",
	Long:          "Plan, write, review and rewrite short marketing posts until they pass a quality threshold.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")

	rootCmd.AddCommand(generateCmd, serveCmd, historyCmd, reportCmd, styleGuidesCmd, mcpCmd)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[cli] .env ignored: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// app bundles the loaded config with the shared collaborators.
type app struct {
	cfg    config.Config
	logger *logging.Logger
}

// loadApp reads the config. The default path may be missing; an explicit
// --config must exist.
func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		cfg = config.Default()
		cfg.ResolveAPIKey()
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	if logLevel != "" {
		level = logging.ParseLevel(logLevel)
	}
	if verbose {
		level = logging.LevelDebug
	}
	// stdout 留给结果输出，日志写 stderr。
	return &app{cfg: cfg, logger: logging.New(os.Stderr, level)}, nil
}

func (a *app) agent() (*generator.Agent, error) {
	llm, err := buildLLM(a.cfg)
	if err != nil {
		return nil, err
	}
	return generator.NewAgent(llm, a.cfg.Workflow, generator.WithLogger(a.logger))
}

func (a *app) guides() *styleguide.DirProvider {
	return styleguide.NewDirProvider(a.cfg.StyleGuides.Dir, a.logger)
}

func (a *app) searcher(enabled bool) research.Searcher {
	if !enabled {
		return nil
	}
	return research.Simulated{}
}

func (a *app) openStore() (*store.Store, error) {
	path := a.cfg.Store.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return store.Open(path)
}

func buildLLM(cfg config.Config) (generator.LLMClient, error) {
	settings := cfg.LLMSettings()
	switch settings.Provider {
	case "mock":
		return generator.NewMockLLM(), nil
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url（例如官方/网关地址）。
		if settings.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "":
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key_env in config")
	default:
		return nil, fmt.Errorf("llm provider %s not supported", settings.Provider)
	}
}
