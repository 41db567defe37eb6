package contract

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Index: 单文件内稳定递增的索引（0..n-1）。
type Index int64

// Meta: 可选的轻量元信息；核心流程不读取其键值。
type Meta map[string]string

// Record: 原子输入片段（JSONL 中的一行，不可跨文件）。
// 约束：
// - FileID 一致；
// - Index 自 0 严格递增（仅计非空行）；
// - Text 为去掉行尾 CR 的原始行，不做业务性清洗；
// - Meta["line"] 记录源文件中的 1 基行号。
type Record struct {
	Index  Index
	FileID FileID
	Text   string
	Meta   Meta // 可为 nil
}
