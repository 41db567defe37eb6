package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifcheck/pkg/contract"
	sjsonl "ifcheck/plugins/splitter/jsonl"
)

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
	out  map[string]string
	fail bool
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if w.fail {
		return errors.New("disk full")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if w.out == nil {
		w.out = map[string]string{}
	}
	w.out[string(id)] = string(b)
	return nil
}

func TestConvert(t *testing.T) {
	cases := []struct {
		name    string
		row     string
		chosen  string
		reject  string
		wantErr bool
	}{
		{"字符串 0", `{"prompt":"p","response_0":"safe","response_1":"unsafe","safer_response_id":"0"}`, "safe", "unsafe", false},
		{"字符串 1", `{"prompt":"p","response_0":"unsafe","response_1":"safe","safer_response_id":"1"}`, "safe", "unsafe", false},
		{"整数 0", `{"prompt":"p","response_0":"safe","response_1":"unsafe","safer_response_id":0}`, "safe", "unsafe", false},
		{"整数 1", `{"prompt":"p","response_0":"unsafe","response_1":"safe","safer_response_id":1}`, "safe", "unsafe", false},
		{"空回复允许", `{"prompt":"p","response_0":"","response_1":"x","safer_response_id":"0"}`, "", "x", false},
		{"缺 id", `{"prompt":"p","response_0":"a","response_1":"b"}`, "", "", true},
		{"缺 prompt", `{"response_0":"a","response_1":"b","safer_response_id":"0"}`, "", "", true},
		{"id 类型非法", `{"prompt":"p","response_0":"a","response_1":"b","safer_response_id":[0]}`, "", "", true},
		{"非 JSON", `nope`, "", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := Convert(c.row, "")
			if c.wantErr {
				require.ErrorIs(t, err, contract.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultSource, p.Source)
			require.Len(t, p.Chosen, 2)
			require.Len(t, p.Rejected, 2)
			assert.Equal(t, contract.Message{Role: "user", Content: "p"}, p.Chosen[0])
			assert.Equal(t, contract.Message{Role: "user", Content: "p"}, p.Rejected[0])
			assert.Equal(t, contract.Message{Role: "assistant", Content: c.chosen}, p.Chosen[1])
			assert.Equal(t, contract.Message{Role: "assistant", Content: c.reject}, p.Rejected[1])
		})
	}
}

func TestRun(t *testing.T) {
	in := `{"prompt":"how?","response_0":"no","response_1":"sure <b>","safer_response_id":"0"}
bad line
{"prompt":"why?","response_0":"a","response_1":"b","safer_response_id":1}
`
	w := &memWriter{}
	st, err := Run(context.Background(), Components{
		Reader:   stubReader{files: map[string]string{"data/pku.jsonl": in, "other.jsonl": ""}},
		Splitter: sjsonl.New(nil),
		Writer:   w,
	}, Settings{Inputs: []string{"data/pku.jsonl", "other.jsonl"}, Source: "custom"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 2, Pairs: 2, Skipped: 1}, st)

	out := w.out["data/pku.jsonl"+Suffix]
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "sure <b>", "不转义 HTML")
	var p contract.PreferencePair
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &p))
	assert.Equal(t, "b", p.Chosen[1].Content)
	assert.Equal(t, "custom", p.Source)

	empty, ok := w.out["other.jsonl"+Suffix]
	require.True(t, ok, "空输入也写出工件")
	assert.Empty(t, empty)
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), Components{}, Settings{Inputs: []string{"x"}}, nil)
	require.Error(t, err)

	comp := Components{
		Reader:   stubReader{files: map[string]string{"a": `{"prompt":"p","response_0":"a","response_1":"b","safer_response_id":"0"}`}},
		Splitter: sjsonl.New(nil),
		Writer:   &memWriter{fail: true},
	}
	_, err = Run(context.Background(), comp, Settings{}, nil)
	require.Error(t, err, "空输入")

	_, err = Run(context.Background(), comp, Settings{Inputs: []string{"a"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	comp.Writer = &memWriter{}
	_, err = Run(ctx, comp, Settings{Inputs: []string{"a"}}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
