package ifeval

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// VerifyPostscript 要求 text 含有 marker，且从首个 marker 起（去首尾空白）的文本字符数严格大于 marker。
func VerifyPostscript(text, marker string) bool {
	idx := strings.Index(text, marker)
	if idx < 0 {
		return false
	}
	rest := trimSpace(text[idx:])
	return utf8.RuneCountInString(rest) > utf8.RuneCountInString(marker)
}

// ExtractPlaceholders 返回所有 [..] 占位符的内容（非贪婪、不跨行）。
func ExtractPlaceholders(text string) []string {
	out := []string{}
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// ValidatePlaceholders 要求至少 n 个方括号占位符，并返回抽取到的内容。
func ValidatePlaceholders(text string, n int) (bool, []string) {
	found := ExtractPlaceholders(text)
	return len(found) >= n, found
}

// ValidateTitle 要求至少一个 <<标题>>。
func ValidateTitle(text string) bool {
	return titleRe.MatchString(text)
}

// ValidateChoice 报告 text 是否为任一选项的子串。
// 注意：这是宽松判定，空串或选项片段同样通过。
func ValidateChoice(text string, options []string) bool {
	for _, o := range options {
		if strings.Contains(o, text) {
			return true
		}
	}
	return false
}

// CountHighlightedSections 统计 *高亮* 片段（非贪婪、不跨行）。
func CountHighlightedSections(text string) int {
	return len(highlightRe.FindAllStringIndex(text, -1))
}

// ValidateHighlightedSections 要求至少 n 个高亮片段。
func ValidateHighlightedSections(text string, n int) bool {
	return CountHighlightedSections(text) >= n
}

// ValidateSections 按 splitter 切分，去掉开头的空段后要求恰有 n 段。
// splitter 为空判定为 false。
func ValidateSections(text string, n int, splitter string) bool {
	if splitter == "" {
		return false
	}
	parts := strings.Split(text, splitter)
	if parts[0] == "" {
		parts = parts[1:]
	}
	return len(parts) == n
}

// ValidateJSONFormat 要求全文可解析为 JSON 值。
func ValidateJSONFormat(text string) bool {
	return json.Valid([]byte(text))
}

// ValidateRepeatPrompt 要求 text 以 prompt 原样开头。
func ValidateRepeatPrompt(text, prompt string) bool {
	return strings.HasPrefix(text, prompt)
}

// twoResponsesSep: 两段回答之间的分隔符。
const twoResponsesSep = "******"

// ValidateTwoResponses 要求恰好一个 "******" 分隔，且两侧去空白后内容不同。
func ValidateTwoResponses(text string) bool {
	if strings.Count(text, twoResponsesSep) != 1 {
		return false
	}
	first, second, _ := strings.Cut(text, twoResponsesSep)
	return trimSpace(first) != trimSpace(second)
}

// ValidateUppercase 要求 text 与其大写形式相同。
func ValidateUppercase(text string) bool {
	return text == toUpper(text)
}

// ValidateLowercase 要求 text 与其小写形式相同。
func ValidateLowercase(text string) bool {
	return text == toLower(text)
}

// ValidateEnd 要求 text 以 phrase 结尾。
func ValidateEnd(text, phrase string) bool {
	return strings.HasSuffix(text, phrase)
}

// ValidateQuotation 要求 text 以双引号开头并以双引号结尾。
func ValidateQuotation(text string) bool {
	return strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`)
}

// ValidateNoCommas 要求全文不含 ','。
func ValidateNoCommas(text string) bool {
	return !strings.Contains(text, ",")
}
