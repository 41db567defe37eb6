package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifcheck/internal/diag"
	"ifcheck/pkg/contract"
	sjsonl "ifcheck/plugins/splitter/jsonl"
)

// 通用桩件 ----------------------------------------------------
type stubReader struct{ files map[string]string }

func (s stubReader) Iterate(ctx context.Context, roots []string, yield func(contract.FileID, io.ReadCloser) error) error {
	for _, name := range roots {
		if err := yield(contract.FileID(name), io.NopCloser(strings.NewReader(s.files[name]))); err != nil {
			return err
		}
	}
	return nil
}

type memWriter struct {
	mu   sync.Mutex
	out  map[string]string
	fail string
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if w.fail != "" && string(id) == w.fail {
		return errors.New("disk full")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		w.out = map[string]string{}
	}
	w.out[string(id)] = string(b)
	return nil
}

func decodeResults(t *testing.T, s string) []Result {
	t.Helper()
	var out []Result
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		var r Result
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		out = append(out, r)
	}
	return out
}

const sample = `{"id":"a","response":"HELLO WORLD","ground_truth":{"func_name":"validate_uppercase"}}
{"id":"b","output":"hello","ground_truth":"{\"func_name\": \"validate_uppercase\", \"N\": null}"}

{"id":"c","response":"x","ground_truth":{"func_name":"no_such_check"}}
not json
{"id":"e","response":"one two three","ground_truth":{"func_name":"validate_word_constraint","N":3,"quantifier":"around"}}
{"id":"f","response":"hello","ground_truth":{"func_name":"verify_letter_frequency","letter":"ll","N":1}}
`

func TestRunEvaluatesAndSummarizes(t *testing.T) {
	w := &memWriter{}
	comp := Components{
		Reader:   stubReader{files: map[string]string{"data/in.jsonl": sample}},
		Splitter: sjsonl.New(nil),
		Writer:   w,
	}
	sum, err := Run(context.Background(), comp, Settings{Inputs: []string{"data/in.jsonl"}, Concurrency: 3}, nil)
	require.NoError(t, err)

	results := decodeResults(t, w.out["data/in.jsonl.results.jsonl"])
	require.Len(t, results, 6)
	ids := []string{}
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "", "e", "f"}, ids, "结果应保持输入顺序")

	assert.True(t, results[0].Pass)
	assert.False(t, results[1].Pass)
	assert.Empty(t, results[1].Error)
	assert.Equal(t, 2, results[1].Line)
	assert.Equal(t, "no_such_check", results[2].Constraint)
	assert.Equal(t, string(diag.CodeInvalid), results[2].Code)
	assert.Equal(t, 4, results[2].Line, "空行计入行号")
	assert.NotEmpty(t, results[3].Error)
	assert.True(t, results[4].Pass)
	require.NotNil(t, results[4].Measured)
	assert.Equal(t, 3, *results[4].Measured)
	assert.Equal(t, string(diag.CodeInvalid), results[5].Code)

	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 2, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, sum.Errored)
	assert.InDelta(t, 2.0/6.0, sum.PassRate, 1e-9)
	assert.Equal(t, Tally{Total: 2, Passed: 1}, sum.ByConstraint["validate_uppercase"])
	assert.Equal(t, []string{"no_such_check", "validate_uppercase", "validate_word_constraint", "verify_letter_frequency"}, sum.SortedConstraints())

	var onDisk Summary
	require.NoError(t, json.Unmarshal([]byte(w.out["summary.json"]), &onDisk))
	assert.Equal(t, sum.Total, onDisk.Total)
	assert.Contains(t, sum.String(), "passed=2")
}

func TestRunMultipleFilesAndEmpty(t *testing.T) {
	w := &memWriter{}
	comp := Components{
		Reader: stubReader{files: map[string]string{
			"a.jsonl": `{"response":"x","ground_truth":{"func_name":"validate_no_commas"}}`,
			"b.jsonl": "",
		}},
		Splitter: sjsonl.New(nil),
		Writer:   w,
	}
	sum, err := Run(context.Background(), comp, Settings{Inputs: []string{"a.jsonl", "b.jsonl"}, SummaryID: "eval/summary.json"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 1, sum.Total)
	assert.Contains(t, w.out, "b.jsonl.results.jsonl")
	assert.Empty(t, w.out["b.jsonl.results.jsonl"])
	assert.Contains(t, w.out, "eval/summary.json")
}

func TestRunWriterErrorAborts(t *testing.T) {
	w := &memWriter{fail: "a.jsonl.results.jsonl"}
	comp := Components{
		Reader:   stubReader{files: map[string]string{"a.jsonl": `{"response":"x","ground_truth":{"func_name":"validate_no_commas"}}`}},
		Splitter: sjsonl.New(nil),
		Writer:   w,
	}
	_, err := Run(context.Background(), comp, Settings{Inputs: []string{"a.jsonl"}}, diag.NewLoggerIn(t.TempDir(), "c", "debug"))
	require.Error(t, err)
	assert.NotContains(t, w.out, "summary.json")
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	comp := Components{
		Reader:   stubReader{files: map[string]string{"a.jsonl": `{"response":"x","ground_truth":{"func_name":"validate_no_commas"}}`}},
		Splitter: sjsonl.New(nil),
		Writer:   &memWriter{},
	}
	_, err := Run(ctx, comp, Settings{Inputs: []string{"a.jsonl"}}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunSanity(t *testing.T) {
	_, err := Run(context.Background(), Components{}, Settings{Inputs: []string{"x"}}, nil)
	require.Error(t, err)
	_, err = Run(context.Background(), Components{Reader: stubReader{}, Splitter: sjsonl.New(nil), Writer: &memWriter{}}, Settings{}, nil)
	require.Error(t, err)
}

func TestEvaluateRowShapes(t *testing.T) {
	rec := func(s string) contract.Record {
		return contract.Record{FileID: "f", Index: 4, Text: s}
	}
	r := Evaluate(rec(`{"ground_truth":{"func_name":"validate_title"}}`))
	assert.Equal(t, string(diag.CodeInvalid), r.Code, "缺少 response")
	assert.Equal(t, 5, r.Line, "无 Meta 时按 Index+1")

	r = Evaluate(rec(`{"response":"<<t>>"}`))
	assert.Contains(t, r.Error, "ground_truth")

	r = Evaluate(rec(`{"response":"<<t>>","output":"none","ground_truth":{"func_name":"validate_title"}}`))
	assert.True(t, r.Pass, "response 优先于 output")

	r = Evaluate(rec(`{"response":"a","ground_truth":{"func_name":"verify_keywords"}}`))
	assert.Equal(t, "verify_keywords", r.Constraint)
	assert.Contains(t, r.Error, "keyword_list")
}
