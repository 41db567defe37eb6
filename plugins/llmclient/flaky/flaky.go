package flaky

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"

	"ifcheck/pkg/contract"
	"ifcheck/plugins/llmclient/mock"
)

// Options 定义可选项。
type Options struct {
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
	// Seed: 正常响应的随机种子。
	Seed int64 `json:"seed,omitempty"`
}

// Client 是带状态的 LLM 实现：
// 第一次 Complete 返回 ErrRateLimited；
// 第二次返回无法解析的文本；
// 之后返回格式合法的题目。
type Client struct {
	logPath string
	seed    int64
	count   atomic.Int64
}

// New 构造 Client。
func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	return &Client{logPath: o.LogPath, seed: o.Seed}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	f, err := os.OpenFile(c.logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(s + "\n")
}

// Complete 实现 contract.LLMClient。
func (c *Client) Complete(ctx context.Context, req contract.CompletionRequest) ([]contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := req.N
	if n <= 0 {
		n = 1
	}
	call := c.count.Add(1)
	switch call {
	case 1:
		c.log("rate_limited")
		return nil, contract.ErrRateLimited
	case 2:
		c.log("invalid")
		return []contract.Raw{{Text: "invalid"}}, nil
	}
	c.log("ok")
	out := make([]contract.Raw, n)
	for i := range out {
		out[i] = contract.Raw{Text: mock.Question(c.seed + call*7919 + int64(i))}
	}
	return out, nil
}

var _ contract.LLMClient = (*Client)(nil)
