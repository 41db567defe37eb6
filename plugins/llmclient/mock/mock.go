package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"

	"ifcheck/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	// APIKey: 仅用于限流分组（调试用），不参与任何网络请求。
	APIKey string `json:"api_key"`
	// ResponseMode: 响应模式（用于集成测试与无网络联调）。
	//  - "" 或 "mmlu": 每个候选为一道 Question/A-D/Correct answer 格式的随机题目；
	//  - "echo": 回显 Prompt 最后一条消息。
	ResponseMode string `json:"response_mode,omitempty"`
	// Seed: 随机种子；相同种子与调用序列产生相同输出。
	Seed int64 `json:"seed,omitempty"`
}

// Client 为无网络的 LLM 实现。
type Client struct {
	mode  string
	seed  int64
	calls atomic.Int64
}

func New(raw json.RawMessage) (contract.LLMClient, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	mode := strings.TrimSpace(o.ResponseMode)
	if mode == "" {
		mode = "mmlu"
	}
	if mode != "mmlu" && mode != "echo" {
		return nil, fmt.Errorf("mock: unknown response_mode %q: %w", mode, contract.ErrInvalidInput)
	}
	return &Client{mode: mode, seed: o.Seed}, nil
}

// Complete 返回 max(req.N,1) 个候选。
func (c *Client) Complete(ctx context.Context, req contract.CompletionRequest) ([]contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := req.N
	if n <= 0 {
		n = 1
	}
	call := c.calls.Add(1)
	out := make([]contract.Raw, 0, n)
	for i := 0; i < n; i++ {
		switch c.mode {
		case "echo":
			out = append(out, contract.Raw{Text: lastMessage(req.Prompt)})
		default:
			out = append(out, contract.Raw{Text: Question(c.seed + call*1_000_003 + int64(i))})
		}
	}
	return out, nil
}

func lastMessage(p contract.Prompt) string {
	switch v := p.(type) {
	case contract.TextPrompt:
		return string(v)
	case contract.ChatPrompt:
		if len(v) > 0 {
			return v[len(v)-1].Content
		}
	}
	return ""
}

var vocab = strings.Fields(`atom orbit enzyme theorem prime vector market treaty empire sonnet glacier neuron
quartz tariff ledger photon delta canyon verdict synapse bishop lattice monsoon harbor plasma
falcon ridge cipher meadow velvet anchor tundra comet saddle lantern marble thistle`)

func phrase(r *rand.Rand, n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = vocab[r.Intn(len(vocab))]
	}
	return strings.Join(w, " ")
}

// Question 按种子生成一道格式合法的随机四选一题目文本。
func Question(seed int64) string {
	r := rand.New(rand.NewSource(seed))
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: Which %s?\n", phrase(r, 10))
	for _, l := range contract.ChoiceLabels {
		fmt.Fprintf(&sb, "%s: %s\n", l, phrase(r, 4))
	}
	fmt.Fprintf(&sb, "Correct answer: %s", contract.ChoiceLabels[r.Intn(len(contract.ChoiceLabels))])
	return sb.String()
}

var _ contract.LLMClient = (*Client)(nil)
