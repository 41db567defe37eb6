package registry

import (
	"encoding/json"
	"fmt"
	"sort"

	"ifcheck/pkg/contract"
	"ifcheck/pkg/ifeval"
)

// ErrUnknownConstraint: 约束标识不在 Constraint 表中。同时满足 errors.Is(err, contract.ErrInvalidInput)。
var ErrUnknownConstraint = fmt.Errorf("unknown constraint: %w", contract.ErrInvalidInput)

// NewChecker 工厂签名：接收约束参数的原样 JSON，返回已绑定参数的 Checker。
type NewChecker func(raw json.RawMessage) (contract.Checker, error)

// 参数记录。字段名沿用 ground truth 的键名；指针字段为必填项。
type (
	KeywordsArgs struct {
		KeywordList *[]string `json:"keyword_list"`
	}
	KeywordFrequencyArgs struct {
		Word *string `json:"word"`
		N    *int    `json:"N"`
	}
	ForbiddenWordsArgs struct {
		ForbiddenWords *[]string `json:"forbidden_words"`
	}
	LetterFrequencyArgs struct {
		Letter *string `json:"letter"`
		N      *int    `json:"N"`
	}
	LanguageArgs struct {
		Language *string `json:"language"`
	}
	CountArgs struct {
		N *int `json:"N"`
	}
	QuantifiedArgs struct {
		N          *int                 `json:"N"`
		Quantifier *contract.Quantifier `json:"quantifier"`
	}
	ParagraphsArgs struct {
		N         *int    `json:"N"`
		FirstWord *string `json:"first_word"`
		I         *int    `json:"i"`
	}
	PostscriptArgs struct {
		PostscriptMarker *string `json:"postscript_marker"`
	}
	ChoiceArgs struct {
		Options *[]string `json:"options"`
	}
	SectionsArgs struct {
		N               *int    `json:"N"`
		SectionSplitter *string `json:"section_splitter"`
	}
	RepeatPromptArgs struct {
		OriginalPrompt *string `json:"original_prompt"`
	}
	EndArgs struct {
		EndPhrase *string `json:"end_phrase"`
	}
	NoArgs struct{}
)

// need 取出必填字段；缺失时返回包裹 contract.ErrInvalidInput 的错误。
func need[T any](name string, p *T) (T, error) {
	if p == nil {
		var zero T
		return zero, fmt.Errorf("missing argument %q: %w", name, contract.ErrInvalidInput)
	}
	return *p, nil
}

// decodeArgs 严格解码参数；解码失败归类为 contract.ErrInvalidInput。
func decodeArgs(raw json.RawMessage, v any) error {
	if err := strictUnmarshal(raw, v); err != nil {
		return fmt.Errorf("decode arguments: %v: %w", err, contract.ErrInvalidInput)
	}
	return nil
}

func pass(ok bool) contract.Result { return contract.Result{Pass: ok} }

func measured(ok bool, n int) contract.Result { return contract.Result{Pass: ok, Measured: &n} }

func static(f func(text string) bool) NewChecker {
	return func(raw json.RawMessage) (contract.Checker, error) {
		var a NoArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) { return pass(f(text)), nil }), nil
	}
}

func quantified(count func(string) int, check func(string, int, contract.Quantifier) bool) NewChecker {
	return func(raw json.RawMessage) (contract.Checker, error) {
		var a QuantifiedArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		n, err := need("N", a.N)
		if err != nil {
			return nil, err
		}
		q, err := need("quantifier", a.Quantifier)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return measured(check(text, n, q), count(text)), nil
		}), nil
	}
}

func counted(count func(string) int, check func(string, int) bool) NewChecker {
	return func(raw json.RawMessage) (contract.Checker, error) {
		var a CountArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		n, err := need("N", a.N)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			if count == nil {
				return pass(check(text, n)), nil
			}
			return measured(check(text, n), count(text)), nil
		}), nil
	}
}

// Constraint 约束检查器注册表（显式、零反射）。键为 ground truth 中的 func_name。
var Constraint = map[string]NewChecker{
	"verify_keywords": func(raw json.RawMessage) (contract.Checker, error) {
		var a KeywordsArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		kws, err := need("keyword_list", a.KeywordList)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return pass(ifeval.VerifyKeywords(text, kws)), nil
		}), nil
	},
	"verify_keyword_frequency": func(raw json.RawMessage) (contract.Checker, error) {
		var a KeywordFrequencyArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		word, err := need("word", a.Word)
		if err != nil {
			return nil, err
		}
		n, err := need("N", a.N)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			c := ifeval.CountKeyword(text, word)
			return measured(c == n, c), nil
		}), nil
	},
	"validate_forbidden_words": func(raw json.RawMessage) (contract.Checker, error) {
		var a ForbiddenWordsArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		words, err := need("forbidden_words", a.ForbiddenWords)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			found := ifeval.FindForbiddenWords(text, words)
			return contract.Result{Pass: len(found) == 0, Found: found}, nil
		}), nil
	},
	"verify_letter_frequency": func(raw json.RawMessage) (contract.Checker, error) {
		var a LetterFrequencyArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		letter, err := need("letter", a.Letter)
		if err != nil {
			return nil, err
		}
		n, err := need("N", a.N)
		if err != nil {
			return nil, err
		}
		// letter 的合法性在 Check 时由 ifeval 报告，与直接调用保持一致
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			ok, err := ifeval.VerifyLetterFrequency(text, letter, n)
			if err != nil {
				return contract.Result{}, err
			}
			return pass(ok), nil
		}), nil
	},
	"validate_response_language": func(raw json.RawMessage) (contract.Checker, error) {
		var a LanguageArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		lang, err := need("language", a.Language)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return pass(ifeval.ValidateResponseLanguage(text, lang)), nil
		}), nil
	},
	"verify_paragraph_count":     counted(nil, ifeval.VerifyParagraphCount),
	"validate_word_constraint":   quantified(ifeval.CountWords, ifeval.ValidateWordConstraint),
	"verify_sentence_constraint": quantified(ifeval.CountSentences, ifeval.VerifySentenceConstraint),
	"validate_paragraphs": func(raw json.RawMessage) (contract.Checker, error) {
		var a ParagraphsArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		n, err := need("N", a.N)
		if err != nil {
			return nil, err
		}
		fw, err := need("first_word", a.FirstWord)
		if err != nil {
			return nil, err
		}
		i, err := need("i", a.I)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return pass(ifeval.ValidateParagraphs(text, n, fw, i)), nil
		}), nil
	},
	"verify_postscript": func(raw json.RawMessage) (contract.Checker, error) {
		var a PostscriptArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		marker, err := need("postscript_marker", a.PostscriptMarker)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return pass(ifeval.VerifyPostscript(text, marker)), nil
		}), nil
	},
	"validate_placeholders": func(raw json.RawMessage) (contract.Checker, error) {
		var a CountArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		n, err := need("N", a.N)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			ok, found := ifeval.ValidatePlaceholders(text, n)
			c := len(found)
			return contract.Result{Pass: ok, Measured: &c, Found: found}, nil
		}), nil
	},
	"verify_bullet_points": counted(ifeval.CountBulletPoints, ifeval.VerifyBulletPoints),
	"validate_title":       static(ifeval.ValidateTitle),
	"validate_choice": func(raw json.RawMessage) (contract.Checker, error) {
		var a ChoiceArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		opts, err := need("options", a.Options)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return pass(ifeval.ValidateChoice(text, opts)), nil
		}), nil
	},
	"validate_highlighted_sections": counted(ifeval.CountHighlightedSections, ifeval.ValidateHighlightedSections),
	"validate_sections": func(raw json.RawMessage) (contract.Checker, error) {
		var a SectionsArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		n, err := need("N", a.N)
		if err != nil {
			return nil, err
		}
		sp, err := need("section_splitter", a.SectionSplitter)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return pass(ifeval.ValidateSections(text, n, sp)), nil
		}), nil
	},
	"validate_json_format": static(ifeval.ValidateJSONFormat),
	"validate_repeat_prompt": func(raw json.RawMessage) (contract.Checker, error) {
		var a RepeatPromptArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		p, err := need("original_prompt", a.OriginalPrompt)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return pass(ifeval.ValidateRepeatPrompt(text, p)), nil
		}), nil
	},
	"validate_two_responses":           static(ifeval.ValidateTwoResponses),
	"validate_uppercase":               static(ifeval.ValidateUppercase),
	"validate_lowercase":               static(ifeval.ValidateLowercase),
	"validate_frequency_capital_words": quantified(ifeval.CountCapitalWords, ifeval.ValidateFrequencyCapitalWords),
	"validate_end": func(raw json.RawMessage) (contract.Checker, error) {
		var a EndArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		p, err := need("end_phrase", a.EndPhrase)
		if err != nil {
			return nil, err
		}
		return contract.CheckerFunc(func(text string) (contract.Result, error) {
			return pass(ifeval.ValidateEnd(text, p)), nil
		}), nil
	},
	"validate_quotation": static(ifeval.ValidateQuotation),
	"validate_no_commas": static(ifeval.ValidateNoCommas),
}

// Names 返回全部约束标识（字典序）。
func Names() []string {
	out := make([]string, 0, len(Constraint))
	for k := range Constraint {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build 按标识构造 Checker。
func Build(id string, raw json.RawMessage) (contract.Checker, error) {
	f, ok := Constraint[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrUnknownConstraint)
	}
	c, err := f(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return c, nil
}

// Verify 构造并执行一次检查。
func Verify(id, text string, raw json.RawMessage) (contract.Result, error) {
	c, err := Build(id, raw)
	if err != nil {
		return contract.Result{}, err
	}
	res, err := c.Check(text)
	if err != nil {
		return contract.Result{}, fmt.Errorf("%s: %w", id, err)
	}
	return res, nil
}
