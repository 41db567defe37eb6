package prompt

import (
	"ifcheck/pkg/contract"
)

// MakeEstimator 返回一个近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// EffectiveMaxTokens 计算预扣固定提示开销后的有效预算。
// 返回 (effectiveMax, overheadTokens)。若 maxTokens<=0，返回 (0,0)。
func EffectiveMaxTokens(pb contract.PromptBuilder, bytesPerToken int, maxTokens int) (int, int) {
	if maxTokens <= 0 {
		return 0, 0
	}
	est := MakeEstimator(bytesPerToken)
	overhead := pb.EstimateOverheadTokens(est)
	return maxTokens - overhead, overhead
}

// AskTokens 估算一次补全请求的 token 占用：提示词（固定开销 + 样例）加 n 个候选的输出上限。
func AskTokens(pb contract.PromptBuilder, bytesPerToken int, examples []contract.Question, maxTokens, n int) int {
	est := MakeEstimator(bytesPerToken)
	total := pb.EstimateOverheadTokens(est)
	for _, q := range examples {
		total += est(q.Question)
		for _, c := range q.Choices {
			total += est(c)
		}
	}
	if n < 1 {
		n = 1
	}
	if maxTokens > 0 {
		total += maxTokens * n
	}
	return total
}
