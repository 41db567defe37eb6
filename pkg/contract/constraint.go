package contract

// Quantifier: 计数类约束的比较方式。
type Quantifier string

const (
	AtLeast Quantifier = "at least"
	Around  Quantifier = "around"
	AtMost  Quantifier = "at most"
)

// Valid 报告 q 是否为已知取值。
func (q Quantifier) Valid() bool {
	switch q {
	case AtLeast, Around, AtMost:
		return true
	}
	return false
}

// Result: 单次校验结果。
// Measured 为检查器实际测得的计数（若有）；Found 为抽取到的片段（占位符/命中的禁用词）。
type Result struct {
	Pass     bool     `json:"pass"`
	Measured *int     `json:"measured,omitempty"`
	Found    []string `json:"found,omitempty"`
}

// Checker: 已绑定参数的约束检查器。
// 约束：
//  1. 纯计算，不做 I/O，不持有可变状态；
//  2. 可被任意 goroutine 并发调用；
//  3. 仅在参数非法时返回 error，文本不满足约束返回 Pass=false。
type Checker interface {
	Check(text string) (Result, error)
}

// CheckerFunc 适配普通函数为 Checker。
type CheckerFunc func(text string) (Result, error)

func (f CheckerFunc) Check(text string) (Result, error) { return f(text) }
