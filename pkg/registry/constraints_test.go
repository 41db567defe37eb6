package registry

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifcheck/pkg/contract"
)

func TestNamesCoverAllConstraints(t *testing.T) {
	names := Names()
	require.Len(t, names, 25)
	assert.Equal(t, "validate_choice", names[0])
	for _, n := range names {
		assert.NotNil(t, Constraint[n], n)
	}
}

func TestVerifyTable(t *testing.T) {
	cases := []struct {
		id   string
		text string
		args string
		pass bool
	}{
		{"verify_keywords", "Hello World", `{"keyword_list":["hello","world"]}`, true},
		{"verify_keyword_frequency", "a cat, a CAT", `{"word":"cat","N":2}`, true},
		{"validate_forbidden_words", "all good", `{"forbidden_words":["bad"]}`, true},
		{"verify_letter_frequency", "hello world", `{"letter":"l","N":3}`, true},
		{"verify_paragraph_count", "a\n* * *\nb", `{"N":2}`, true},
		{"validate_word_constraint", "one two three", `{"N":3,"quantifier":"at least"}`, true},
		{"verify_sentence_constraint", "One. Two.", `{"N":5,"quantifier":"at most"}`, true},
		{"validate_paragraphs", "x\n\nSecond y", `{"N":2,"first_word":"Second","i":2}`, true},
		{"verify_postscript", "body\nP.S. more", `{"postscript_marker":"P.S."}`, true},
		{"validate_placeholders", "[a] [b]", `{"N":3}`, false},
		{"verify_bullet_points", "* a\n* b", `{"N":2}`, true},
		{"validate_title", "<<T>>", `{}`, true},
		{"validate_choice", "yes", `{"options":["yes","no"]}`, true},
		{"validate_highlighted_sections", "*a*", `{"N":1}`, true},
		{"validate_sections", "SECTION 1 SECTION 2", `{"N":2,"section_splitter":"SECTION"}`, true},
		{"validate_json_format", `{"a":1}`, ``, true},
		{"validate_repeat_prompt", "Q? A.", `{"original_prompt":"Q?"}`, true},
		{"validate_two_responses", "A******B", `{}`, true},
		{"validate_uppercase", "HI", `{}`, true},
		{"validate_lowercase", "Hi", `{}`, false},
		{"validate_frequency_capital_words", "AB CD", `{"N":2,"quantifier":"around"}`, true},
		{"validate_end", "bye now", `{"end_phrase":"now"}`, true},
		{"validate_quotation", `"q"`, `{}`, true},
		{"validate_no_commas", "a,b", `{}`, false},
	}
	for _, tt := range cases {
		t.Run(tt.id, func(t *testing.T) {
			res, err := Verify(tt.id, tt.text, json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.pass, res.Pass)
		})
	}
}

func TestVerifyLanguageDispatch(t *testing.T) {
	res, err := Verify("validate_response_language", "   ", json.RawMessage(`{"language":"en"}`))
	require.NoError(t, err)
	assert.False(t, res.Pass)
}

func TestVerifyResultDetails(t *testing.T) {
	res, err := Verify("validate_placeholders", "Hello [name], your [item]", json.RawMessage(`{"N":2}`))
	require.NoError(t, err)
	assert.True(t, res.Pass)
	assert.Equal(t, []string{"name", "item"}, res.Found)
	require.NotNil(t, res.Measured)
	assert.Equal(t, 2, *res.Measured)

	res, err = Verify("validate_forbidden_words", "a Bad day", json.RawMessage(`{"forbidden_words":["bad","evil"]}`))
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, []string{"bad"}, res.Found)

	res, err = Verify("validate_word_constraint", "one two", json.RawMessage(`{"N":5,"quantifier":"around"}`))
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, 2, *res.Measured)

	res, err = Verify("validate_title", "none", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Measured)
}

func TestVerifyErrors(t *testing.T) {
	_, err := Verify("no_such_check", "x", nil)
	require.ErrorIs(t, err, ErrUnknownConstraint)
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	_, err = Verify("verify_letter_frequency", "hello", json.RawMessage(`{"letter":"ll","N":1}`))
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	_, err = Verify("verify_keyword_frequency", "x", json.RawMessage(`{"word":"x"}`))
	require.ErrorIs(t, err, contract.ErrInvalidInput, "缺少 N")

	_, err = Verify("validate_title", "x", json.RawMessage(`{"extra":1}`))
	require.ErrorIs(t, err, contract.ErrInvalidInput, "未知参数")

	_, err = Verify("validate_word_constraint", "x", json.RawMessage(`{"N":"three","quantifier":"around"}`))
	require.ErrorIs(t, err, contract.ErrInvalidInput, "类型错误")
}

// TestUnknownQuantifierIsFalse 未知量词不报错，判定为 false。
func TestUnknownQuantifierIsFalse(t *testing.T) {
	for _, id := range []string{"validate_word_constraint", "verify_sentence_constraint", "validate_frequency_capital_words"} {
		res, err := Verify(id, "ONE two", json.RawMessage(`{"N":1,"quantifier":"exactly"}`))
		require.NoError(t, err, id)
		assert.False(t, res.Pass, id)
	}
}

func TestParseGroundTruth(t *testing.T) {
	id, args, err := ParseGroundTruth(json.RawMessage(`{"func_name":"verify_keywords","keyword_list":["a"],"N":null}`))
	require.NoError(t, err)
	assert.Equal(t, "verify_keywords", id)
	assert.JSONEq(t, `{"keyword_list":["a"]}`, string(args))

	id, args, err = ParseGroundTruth(json.RawMessage(`"{\"func_name\": \"validate_title\", \"N\": null}"`))
	require.NoError(t, err)
	assert.Equal(t, "validate_title", id)
	assert.JSONEq(t, `{}`, string(args))

	for _, bad := range []string{`[]`, `{"N":1}`, `{"func_name":3}`, `{"func_name":""}`, `"not json"`, `null`} {
		_, _, err := ParseGroundTruth(json.RawMessage(bad))
		require.ErrorIs(t, err, contract.ErrInvalidInput, bad)
	}
}

func TestVerifyGroundTruth(t *testing.T) {
	id, res, err := VerifyGroundTruth("HELLO", json.RawMessage(`{"func_name":"validate_uppercase"}`))
	require.NoError(t, err)
	assert.Equal(t, "validate_uppercase", id)
	assert.True(t, res.Pass)
}

// TestCheckerConcurrent 同一 Checker 被多个 goroutine 并发调用结果一致。
func TestCheckerConcurrent(t *testing.T) {
	c, err := Build("verify_sentence_constraint", json.RawMessage(`{"N":3,"quantifier":"around"}`))
	require.NoError(t, err)
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Check("One. Two. Three.")
			if err != nil || !res.Pass || *res.Measured != 3 {
				errs <- "mismatch"
			}
		}()
	}
	wg.Wait()
	close(errs)
	assert.Empty(t, errs)
}
