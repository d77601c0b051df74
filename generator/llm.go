package generator

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when a backend answers with no text.
var ErrEmptyCompletion = errors.New("llm returned empty content")

// LLMClient 抽象大模型客户端，便于替换/Mock。Implementations must return an
// error rather than empty content.
type LLMClient interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is one prompt plus its sampling parameters.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Metadata    map[string]string
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the generated text and its usage.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}
