// Package ifeval 实现指令遵循（IFEval 分类）的 25 种文本约束检查。
//
// 所有函数均为纯函数：无 I/O、无共享可变状态，可被任意 goroutine 并发调用。
// 除 VerifyLetterFrequency 的参数校验外，格式异常的输入一律判定为 false。
package ifeval

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ifcheck/pkg/contract"
)

var (
	// wordRe: 等价于 Unicode 模式下的 \b\w+\b（字母/数字/下划线的极大连续串）。
	wordRe        = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	placeholderRe = regexp.MustCompile(`\[(.*?)\]`)
	titleRe       = regexp.MustCompile(`<<(.*?)>>`)
	highlightRe   = regexp.MustCompile(`\*(.*?)\*`)
)

// compare 按量词比较实际计数与目标；未知量词判定为 false。
func compare(actual, n int, q contract.Quantifier, tolerance int) bool {
	if !q.Valid() {
		return false
	}
	switch q {
	case contract.AtLeast:
		return actual >= n
	case contract.AtMost:
		return actual <= n
	}
	d := actual - n
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// wordTolerance: "around" 的词数容差，max(round(0.1·N), 1)，取整规则为四舍六入五成双。
func wordTolerance(n int) int {
	t := int(math.RoundToEven(float64(n) * 0.1))
	if t < 1 {
		return 1
	}
	return t
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// isSpaceRune 覆盖 unicode.IsSpace 之外的 ASCII 分隔控制符（0x1c..0x1f）。
func isSpaceRune(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// trimSpace 去除首尾空白，空白集合与 isSpaceRune 一致。
func trimSpace(s string) string {
	return strings.TrimFunc(s, isSpaceRune)
}

// toLower/toUpper 做完整 Unicode 大小写映射（"ß"→"SS"、"İ"→"i̇"），
// 与逐字符映射的 strings.ToLower/ToUpper 不同。Caser 有状态，每次调用新建。
func toLower(s string) string { return cases.Lower(language.Und).String(s) }

func toUpper(s string) string { return cases.Upper(language.Und).String(s) }

// splitLines 按通用换行边界切分（\n、\r、\r\n、\v、\f、0x1c..0x1e、U+0085、U+2028、U+2029），
// 不保留行尾，末尾的换行不产生空行。
func splitLines(s string) []string {
	var lines []string
	rs := []rune(s)
	start := 0
	for i := 0; i < len(rs); i++ {
		switch rs[i] {
		case '\n', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
			lines = append(lines, string(rs[start:i]))
			start = i + 1
		case '\r':
			lines = append(lines, string(rs[start:i]))
			if i+1 < len(rs) && rs[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(rs) {
		lines = append(lines, string(rs[start:]))
	}
	return lines
}
