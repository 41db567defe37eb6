package ifeval

import (
	"github.com/abadojack/whatlanggo"
)

// LanguageDetector: 语言识别协作者。返回 ISO 639-1 代码；无法识别时 ok=false。
type LanguageDetector interface {
	Detect(text string) (code string, ok bool)
}

// LanguageDetectorFunc 适配普通函数为 LanguageDetector。
type LanguageDetectorFunc func(text string) (string, bool)

func (f LanguageDetectorFunc) Detect(text string) (string, bool) { return f(text) }

// whatlang: 基于三元组统计的默认实现。
type whatlang struct{}

func (whatlang) Detect(text string) (string, bool) {
	if trimSpace(text) == "" {
		return "", false
	}
	if whatlanggo.DetectScript(text) == nil {
		return "", false
	}
	code := whatlanggo.Detect(text).Lang.Iso6391()
	return code, code != ""
}

// DefaultDetector 为 ValidateResponseLanguage 使用的语言识别器。
var DefaultDetector LanguageDetector = whatlang{}

// ValidateResponseLanguage 要求识别出的首选语言等于 code（ISO 639-1，如 "en"）。
// 无法识别的文本判定为 false。
func ValidateResponseLanguage(text, code string) bool {
	return ValidateResponseLanguageWith(DefaultDetector, text, code)
}

// ValidateResponseLanguageWith 使用给定识别器执行语言校验；d 为 nil 时使用 DefaultDetector。
func ValidateResponseLanguageWith(d LanguageDetector, text, code string) bool {
	if d == nil {
		d = DefaultDetector
	}
	got, ok := d.Detect(text)
	return ok && got == code
}
