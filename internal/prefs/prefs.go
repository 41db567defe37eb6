package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ifcheck/internal/diag"
	"ifcheck/pkg/contract"
)

// 偏好重排：Reader → Splitter → 逐行转换为 chosen/rejected 会话对 → 每个输入写一个 JSONL 工件。
// 坏行记录 warn 后跳过，不中断运行。

// Suffix: 每个输入文件对应的输出工件后缀。
const Suffix = ".preferences.jsonl"

// DefaultSource: 输出记录的 source 字段默认值。
const DefaultSource = "PKU-SafeRLHF"

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader   contract.Reader
	Splitter contract.Splitter
	Writer   contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs []string
	// Source 为空时使用 DefaultSource。
	Source string
}

// Stats: 运行统计。
type Stats struct {
	Files   int `json:"files"`
	Pairs   int `json:"pairs"`
	Skipped int `json:"skipped"`
}

// Row: 一条安全偏好标注。safer_response_id 兼容字符串与整数。
type Row struct {
	Prompt          *string         `json:"prompt"`
	Response0       *string         `json:"response_0"`
	Response1       *string         `json:"response_1"`
	SaferResponseID json.RawMessage `json:"safer_response_id"`
}

// Convert 将一行转换为偏好对：safer_response_id 为 0 时 response_0 为 chosen，否则交换。
func Convert(text, source string) (contract.PreferencePair, error) {
	var row Row
	if err := json.Unmarshal([]byte(text), &row); err != nil {
		return contract.PreferencePair{}, fmt.Errorf("decode row: %v: %w", err, contract.ErrInvalidInput)
	}
	if row.Prompt == nil || row.Response0 == nil || row.Response1 == nil {
		return contract.PreferencePair{}, fmt.Errorf("row: missing prompt/response_0/response_1: %w", contract.ErrInvalidInput)
	}
	id, err := saferID(row.SaferResponseID)
	if err != nil {
		return contract.PreferencePair{}, err
	}
	chosen, rejected := *row.Response1, *row.Response0
	if id == "0" {
		chosen, rejected = *row.Response0, *row.Response1
	}
	if source == "" {
		source = DefaultSource
	}
	return contract.PreferencePair{
		Chosen:   conversation(*row.Prompt, chosen),
		Rejected: conversation(*row.Prompt, rejected),
		Source:   source,
	}, nil
}

func saferID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("row: missing safer_response_id: %w", contract.ErrInvalidInput)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	return "", fmt.Errorf("row: bad safer_response_id %s: %w", string(raw), contract.ErrInvalidInput)
}

func conversation(prompt, reply string) []contract.Message {
	return []contract.Message{
		{Role: "user", Content: prompt},
		{Role: "assistant", Content: reply},
	}
}

// Run 执行转换并返回统计。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Stats, error) {
	var st Stats
	if comp.Reader == nil || comp.Splitter == nil || comp.Writer == nil {
		return st, errors.New("sanity: prefs: missing components")
	}
	if len(set.Inputs) == 0 {
		return st, errors.New("sanity: prefs: empty inputs")
	}

	rtimer := logger.Start("reader", "iterate")
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		recs, err := comp.Splitter.Split(ctx, fid, rc)
		if err != nil {
			return fmt.Errorf("splitter split: %w", err)
		}
		start := time.Now()
		if t := diag.GetTerminal(); t != nil {
			t.TaskStart(string(fid), len(recs))
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		pairs := 0
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := Convert(rec.Text, set.Source)
			if err != nil {
				st.Skipped++
				diag.IncOp("prefs", "skip", "error")
				logger.Warn("prefs", string(diag.Classify(err)), "skip row: "+err.Error(), map[string]string{
					"file_id": string(fid),
					"line":    rec.Meta["line"],
				})
				continue
			}
			if err := enc.Encode(&p); err != nil {
				return err
			}
			pairs++
		}
		wtimer := logger.StartWith("writer", "write", string(fid), "")
		if err := comp.Writer.Write(ctx, contract.OutputID(fid, Suffix), &buf); err != nil {
			if t := diag.GetTerminal(); t != nil {
				t.TaskFinish(false, pairs, time.Since(start))
			}
			return fmt.Errorf("writer write: %w", err)
		}
		wtimer.Finish("write", int64(pairs))
		diag.IncOp("writer", "finish", "success")
		if t := diag.GetTerminal(); t != nil {
			t.TaskFinish(true, pairs, time.Since(start))
		}
		st.Files++
		st.Pairs += pairs
		return nil
	})
	if err != nil {
		code := diag.Classify(err)
		logger.Error("prefs", string(code), "run failed: "+err.Error(), rtimer.Since())
		diag.IncOp("prefs", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("prefs", string(code))
		}
		return st, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(st.Pairs))
	diag.IncOp("reader", "finish", "success")
	return st, nil
}
