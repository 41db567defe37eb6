package ifeval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ifcheck/pkg/contract"
)

// VerifyKeywords 报告每个关键词（忽略大小写）是否都以子串形式出现在 text 中。
// 空关键词列表视为满足。
func VerifyKeywords(text string, keywords []string) bool {
	lower := toLower(text)
	for _, k := range keywords {
		if !strings.Contains(lower, toLower(k)) {
			return false
		}
	}
	return true
}

// CountKeyword 统计小写化后与 word 完全相等的词元个数。
func CountKeyword(text, word string) int {
	want := toLower(word)
	n := 0
	for _, tok := range wordRe.FindAllString(toLower(text), -1) {
		if tok == want {
			n++
		}
	}
	return n
}

// VerifyKeywordFrequency 要求 word 作为完整词元恰好出现 n 次（忽略大小写）。
func VerifyKeywordFrequency(text, word string, n int) bool {
	return CountKeyword(text, word) == n
}

// FindForbiddenWords 返回以子串形式（忽略大小写）出现在 text 中的禁用词，保持输入顺序。
func FindForbiddenWords(text string, words []string) []string {
	lower := toLower(text)
	found := []string{}
	for _, w := range words {
		if strings.Contains(lower, toLower(w)) {
			found = append(found, w)
		}
	}
	return found
}

// ValidateForbiddenWords 要求 text 不含任何禁用词。
func ValidateForbiddenWords(text string, words []string) bool {
	return len(FindForbiddenWords(text, words)) == 0
}

// VerifyLetterFrequency 要求单个字符 letter 在 text 中恰好出现 n 次（区分大小写）。
// letter 不是恰好一个字符时返回包裹 contract.ErrInvalidInput 的错误。
func VerifyLetterFrequency(text, letter string, n int) (bool, error) {
	if utf8.RuneCountInString(letter) != 1 {
		return false, fmt.Errorf("ifeval: letter must be a single character, got %q: %w", letter, contract.ErrInvalidInput)
	}
	return strings.Count(text, letter) == n, nil
}
