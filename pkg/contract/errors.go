package contract

import "errors"

// 最小错误分类（用于上层策略判定与退出码映射）。
var (
	// ErrInvalidInput: 调用方参数非法（如字母频次约束的 letter 不是单个字符）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited: 上游限流（HTTP 429 等）。
	ErrRateLimited = errors.New("rate limited")
	// ErrResponseInvalid: 上游返回内容无法解码为预期结构。
	ErrResponseInvalid = errors.New("response invalid")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如 token 预算、上游配额）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
