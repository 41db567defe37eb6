package contract

import "context"

// Raw: LLM 客户端返回的单个候选文本（万能容器）。
// 约束：原样返回，不做清洗/截断/归一化。
type Raw struct {
	Text string
}

// CompletionRequest: 单次补全请求。
// N 为期望的候选条数；MaxTokens<=0 表示由上游决定。
type CompletionRequest struct {
	Prompt      Prompt
	Temperature float32
	TopP        float32
	MaxTokens   int
	N           int
}

// LLMClient: 以 CompletionRequest 为单位与大模型交互，返回候选 Raw 列表。
// 单次调用、同步返回；应尊重 ctx 取消/超时并及时释放资源。
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) ([]Raw, error)
}
