package generator

import (
	"context"
	"net/http"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
// Complete returns the content of the first choice of the reply.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	// Temperature nil 时使用 0.3。
	Temperature *float64
	MaxTokens   int64
	// Transport carries every upstream call, normally a *transport.Client.
	Transport http.RoundTripper
}
