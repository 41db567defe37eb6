package contract

import "context"

// Prompt: 不透明载荷，由具体 PromptBuilder/LLMClient 配对解释。
type Prompt any

// Message: 最小会话消息形状（可用于 ChatPrompt 与偏好数据集）。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextPrompt: 文本型提示词载荷。
type TextPrompt string

// ChatPrompt: 会话型提示词载荷（最小集合）。
type ChatPrompt []Message

// FewShot: 构造合成题目提示词所需的全部输入。
// Variant 选择提示词措辞（对可选措辞取模）；随机性由调用方负责。
type FewShot struct {
	Subject  string
	Examples []Question
	Variant  int
}

// PromptBuilder: 基于 FewShot 构造确定性的 Prompt。
// 约束：
//   - 纯计算，不做 I/O；
//   - 相同输入产生相同输出；
//   - 失败快速返回错误。
type PromptBuilder interface {
	Build(ctx context.Context, in FewShot) (Prompt, error)
	// EstimateOverheadTokens: 估算与样例无关的固定提示词开销（system/固定指令）。
	EstimateOverheadTokens(estimate TokenEstimator) int
}

// TokenEstimator: 文本→token 的近似估算函数。
// 典型实现：ceil(len(utf8_bytes)/BytesPerToken)。
type TokenEstimator func(s string) int
