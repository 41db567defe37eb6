package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"ifcheck/pkg/contract"
)

// DefaultModel: 未配置 model 时使用的模型。
const DefaultModel = "gpt-4"

// Options: 最小必需配置。
type Options struct {
	BaseURL        string `json:"base_url"`        // 例如 https://api.openai.com/v1；为空使用 SDK 默认
	Model          string `json:"model"`           // 为空则使用 DefaultModel
	APIKeyEnv      string `json:"api_key_env"`     // 优先从环境变量读取，默认 OPENAI_API_KEY
	APIKey         string `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	Organization   string `json:"organization"`    // 可选 OpenAI-Organization
	TimeoutSeconds int    `json:"timeout_seconds"` // client 级超时（秒），默认 120
	// MaxCompletionTokens: 以 max_completion_tokens 发送上限（新一代推理模型要求），否则使用 max_tokens。
	MaxCompletionTokens bool `json:"max_completion_tokens"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 120
	}
}

// Client 基于 go-openai 的 Chat Completions 客户端。
type Client struct {
	api         *goopenai.Client
	model       string
	useMaxCompl bool
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("openai options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrInvalidInput)
	}
	cfg := goopenai.DefaultConfig(key)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.OrgID = opts.Organization
	cfg.HTTPClient = &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &Client{
		api:         goopenai.NewClientWithConfig(cfg),
		model:       opts.Model,
		useMaxCompl: opts.MaxCompletionTokens,
	}, nil
}

// Model 返回请求使用的模型名（用于输出文件命名）。
func (c *Client) Model() string { return c.model }

// upstreamError 实现 net.Error，用于将 HTTP 上游 5xx/408 映射为网络类错误，便于分类。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

func toMessages(p contract.Prompt) ([]goopenai.ChatCompletionMessage, error) {
	switch v := p.(type) {
	case contract.TextPrompt:
		return []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleUser, Content: string(v)}}, nil
	case contract.ChatPrompt:
		if len(v) == 0 {
			return nil, fmt.Errorf("openai: empty chat prompt: %w", contract.ErrInvalidInput)
		}
		msgs := make([]goopenai.ChatCompletionMessage, 0, len(v))
		for _, m := range v {
			msgs = append(msgs, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
		return msgs, nil
	}
	return nil, fmt.Errorf("openai: unsupported prompt %T: %w", p, contract.ErrInvalidInput)
}

// Complete: 单次调用，同步返回全部候选（按 choice 序）。空内容的候选被丢弃。
func (c *Client) Complete(ctx context.Context, req contract.CompletionRequest) ([]contract.Raw, error) {
	msgs, err := toMessages(req.Prompt)
	if err != nil {
		return nil, err
	}
	creq := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		N:           req.N,
	}
	if req.MaxTokens > 0 {
		if c.useMaxCompl {
			creq.MaxCompletionTokens = req.MaxTokens
		} else {
			creq.MaxTokens = req.MaxTokens
		}
	}
	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classify(ctx, err)
	}
	out := make([]contract.Raw, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		if ch.Message.Content == "" {
			continue
		}
		out = append(out, contract.Raw{Text: ch.Message.Content})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("openai: no choices: %w", contract.ErrResponseInvalid)
	}
	return out, nil
}

// classify 将 SDK 错误映射到 contract 哨兵：429→限流；408/5xx→网络类；其余 4xx→输入无效。
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	status, msg := 0, err.Error()
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status, msg = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("openai upstream %d: %s: %w", status, msg, contract.ErrRateLimited)
	case status == http.StatusRequestTimeout || status/100 == 5:
		return upstreamError{status: status, msg: msg}
	case status/100 == 4:
		return fmt.Errorf("openai upstream %d: %s: %w", status, msg, contract.ErrInvalidInput)
	}
	return fmt.Errorf("openai: %w", err)
}

var _ contract.LLMClient = (*Client)(nil)
