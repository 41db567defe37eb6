package ifeval

import (
	"strings"

	"ifcheck/pkg/contract"
)

// paragraphDivider: markdown 分隔线形式的段落分隔符。
const paragraphDivider = "* * *"

// VerifyParagraphCount 要求以 "* * *" 分隔的段落恰有 n 段且每段非空。
// 比较前逐行去除首尾空白并整体去除首尾空白。
func VerifyParagraphCount(text string, n int) bool {
	lines := splitLines(text)
	for i := range lines {
		lines[i] = trimSpace(lines[i])
	}
	cleaned := trimSpace(strings.Join(lines, "\n"))
	parts := strings.Split(cleaned, paragraphDivider)
	for _, p := range parts {
		if trimSpace(p) == "" {
			return false
		}
	}
	return len(parts) == n
}

// CountWords 按空白切分统计词数。
func CountWords(text string) int {
	return len(strings.FieldsFunc(text, isSpaceRune))
}

// ValidateWordConstraint 按量词比较词数与 n；around 容差为 max(round(0.1·n), 1)。
func ValidateWordConstraint(text string, n int, q contract.Quantifier) bool {
	return compare(CountWords(text), n, q, wordTolerance(n))
}

// CountSentences 统计句子数：在紧跟 '.' 或 '?' 的空白处切分，
// 但跳过形如 "e.g. " 的 \w.\w. 缩写与 "Mr. " 的 [A-Z][a-z]. 称谓。
// 切分点之间的空段同样计数。
func CountSentences(text string) int {
	rs := []rune(text)
	n := 1
	for j := 1; j < len(rs); j++ {
		if !isSpaceRune(rs[j]) {
			continue
		}
		if p := rs[j-1]; p != '.' && p != '?' {
			continue
		}
		if j >= 4 && isWordRune(rs[j-4]) && rs[j-3] == '.' && isWordRune(rs[j-2]) && rs[j-1] != '\n' {
			continue
		}
		if j >= 3 && rs[j-3] >= 'A' && rs[j-3] <= 'Z' && rs[j-2] >= 'a' && rs[j-2] <= 'z' && rs[j-1] == '.' {
			continue
		}
		n++
	}
	return n
}

// VerifySentenceConstraint 按量词比较句子数与 n；around 容差为 1。
func VerifySentenceConstraint(text string, n int, q contract.Quantifier) bool {
	return compare(CountSentences(text), n, q, 1)
}

// ValidateParagraphs 要求以 "\n\n" 分隔的段落恰有 n 段，且第 i 段（1 基）去空白后以 firstWord 开头。
// i 不在 [1, n] 内判定为 false。
func ValidateParagraphs(text string, n int, firstWord string, i int) bool {
	parts := strings.Split(text, "\n\n")
	if len(parts) != n {
		return false
	}
	if i < 1 || i > len(parts) {
		return false
	}
	return strings.HasPrefix(trimSpace(parts[i-1]), firstWord)
}

// CountBulletPoints 统计去空白后以 '*' 或 '-' 开头的行数。
func CountBulletPoints(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = trimSpace(line)
		if strings.HasPrefix(line, "*") || strings.HasPrefix(line, "-") {
			n++
		}
	}
	return n
}

// VerifyBulletPoints 要求恰好 n 个 markdown 列表项。
func VerifyBulletPoints(text string, n int) bool {
	return CountBulletPoints(text) == n
}

// CountCapitalWords 统计仅由 A-Z 组成的完整词元个数。
func CountCapitalWords(text string) int {
	n := 0
	for _, tok := range wordRe.FindAllString(text, -1) {
		if isASCIIUpper(tok) {
			n++
		}
	}
	return n
}

func isASCIIUpper(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return s != ""
}

// ValidateFrequencyCapitalWords 按量词比较全大写词数与 n。
// 注意：around 按精确相等判定（容差 0），与词数/句数约束不同。
func ValidateFrequencyCapitalWords(text string, n int, q contract.Quantifier) bool {
	return compare(CountCapitalWords(text), n, q, 0)
}
