package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ifcheck/internal/diag"
	"ifcheck/pkg/contract"
	"ifcheck/pkg/registry"
)

// 评测流水线：Reader → Splitter → 解析行 → registry 检查（并发）→ 按输入顺序写出 → 汇总。
// - 单点并发：仅此层管理并发；Reader/Splitter/Writer 均为同步组件。
// - 顺序稳定：结果按记录 Index 写出，与完成先后无关。
// - 记录级错误（坏行、未知约束、参数非法）写入结果，不中断运行；I/O 与取消错误中断。

// ResultsSuffix: 每个输入文件对应的结果工件后缀。
const ResultsSuffix = ".results.jsonl"

// DefaultSummaryID: 汇总工件标识。
const DefaultSummaryID contract.ArtifactID = "summary.json"

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader   contract.Reader
	Splitter contract.Splitter
	Writer   contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs      []string
	Concurrency int
	// SummaryID 为空时使用 DefaultSummaryID。
	SummaryID contract.ArtifactID
}

// Row: 一条待评测输入。response 与 output 二选一（response 优先）。
type Row struct {
	ID          string          `json:"id,omitempty"`
	Response    *string         `json:"response,omitempty"`
	Output      *string         `json:"output,omitempty"`
	GroundTruth json.RawMessage `json:"ground_truth"`
}

// Result: 单条记录的评测结果。
type Result struct {
	FileID     string   `json:"file_id"`
	Line       int      `json:"line"`
	ID         string   `json:"id,omitempty"`
	Constraint string   `json:"constraint,omitempty"`
	Pass       bool     `json:"pass"`
	Measured   *int     `json:"measured,omitempty"`
	Found      []string `json:"found,omitempty"`
	Error      string   `json:"error,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// Tally: 单个约束的计数。
type Tally struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// Summary: 全部输入的汇总。
type Summary struct {
	Files        int              `json:"files"`
	Total        int              `json:"total"`
	Passed       int              `json:"passed"`
	Failed       int              `json:"failed"`
	Errored      int              `json:"errored"`
	PassRate     float64          `json:"pass_rate"`
	ByConstraint map[string]Tally `json:"by_constraint"`
}

// Add 计入一条结果。
func (s *Summary) Add(r Result) {
	s.Total++
	switch {
	case r.Error != "":
		s.Errored++
	case r.Pass:
		s.Passed++
	default:
		s.Failed++
	}
	if r.Constraint != "" {
		if s.ByConstraint == nil {
			s.ByConstraint = map[string]Tally{}
		}
		t := s.ByConstraint[r.Constraint]
		t.Total++
		if r.Pass {
			t.Passed++
		}
		s.ByConstraint[r.Constraint] = t
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}
}

// Evaluate 解析并检查一条记录；从不返回 error，失败信息写入 Result。
func Evaluate(rec contract.Record) Result {
	res := Result{FileID: string(rec.FileID), Line: lineOf(rec)}
	fail := func(err error) Result {
		res.Pass = false
		res.Error = err.Error()
		res.Code = string(diag.Classify(err))
		return res
	}
	var row Row
	if err := json.Unmarshal([]byte(rec.Text), &row); err != nil {
		return fail(fmt.Errorf("decode row: %v: %w", err, contract.ErrInvalidInput))
	}
	res.ID = row.ID
	text, err := row.text()
	if err != nil {
		return fail(err)
	}
	if len(bytes.TrimSpace(row.GroundTruth)) == 0 {
		return fail(fmt.Errorf("row: missing ground_truth: %w", contract.ErrInvalidInput))
	}
	id, out, err := registry.VerifyGroundTruth(text, row.GroundTruth)
	res.Constraint = id
	if err != nil {
		return fail(err)
	}
	res.Pass = out.Pass
	res.Measured = out.Measured
	res.Found = out.Found
	return res
}

func (r Row) text() (string, error) {
	switch {
	case r.Response != nil:
		return *r.Response, nil
	case r.Output != nil:
		return *r.Output, nil
	}
	return "", fmt.Errorf("row: missing response/output: %w", contract.ErrInvalidInput)
}

func lineOf(rec contract.Record) int {
	if rec.Meta != nil {
		if n, err := strconv.Atoi(rec.Meta["line"]); err == nil {
			return n
		}
	}
	return int(rec.Index) + 1
}

// Run 执行评测；返回全部输入的汇总。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Summary, error) {
	var sum Summary
	if err := sanity(comp, set); err != nil {
		return sum, fmt.Errorf("sanity: %w", err)
	}
	conc := set.Concurrency
	if conc < 1 {
		conc = 1
	}

	rtimer := logger.Start("reader", "iterate")
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		stimer := logger.StartWith("splitter", "split", string(fid), "")
		recs, err := comp.Splitter.Split(ctx, fid, rc)
		if err != nil {
			observeErr(logger, "splitter", "split failed", string(fid), err)
			return fmt.Errorf("splitter split: %w", err)
		}
		stimer.Finish("split", int64(len(recs)))
		diag.IncOp("splitter", "finish", "success")

		results, err := evaluateFile(ctx, fid, recs, conc)
		if err != nil {
			observeErr(logger, "checker", "evaluate failed", string(fid), err)
			return err
		}
		for _, r := range results {
			sum.Add(r)
			if r.Error != "" {
				logger.Warn("checker", r.Code, r.Error, map[string]string{
					"file_id": r.FileID,
					"line":    strconv.Itoa(r.Line),
				})
			}
		}
		sum.Files++

		wtimer := logger.StartWith("writer", "write", string(fid), "")
		if err := comp.Writer.Write(ctx, contract.OutputID(fid, ResultsSuffix), encodeResults(results)); err != nil {
			observeErr(logger, "writer", "write failed", string(fid), err)
			return fmt.Errorf("writer write: %w", err)
		}
		wtimer.Finish("write", int64(len(results)))
		diag.IncOp("writer", "finish", "success")
		return nil
	})
	if err != nil {
		observeErr(logger, "reader", "iterate failed", "", err)
		return sum, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(sum.Files))
	diag.IncOp("reader", "finish", "success")

	sid := set.SummaryID
	if sid == "" {
		sid = DefaultSummaryID
	}
	if sum.ByConstraint == nil {
		sum.ByConstraint = map[string]Tally{}
	}
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return sum, err
	}
	if err := comp.Writer.Write(ctx, sid, bytes.NewReader(append(b, '\n'))); err != nil {
		observeErr(logger, "writer", "write summary failed", string(sid), err)
		return sum, fmt.Errorf("writer write(summary): %w", err)
	}
	return sum, nil
}

// evaluateFile 以有界并发检查一个文件的全部记录；结果顺序与 recs 一致。
func evaluateFile(ctx context.Context, fid contract.FileID, recs []contract.Record, conc int) ([]Result, error) {
	if t := diag.GetTerminal(); t != nil {
		t.TaskStart(string(fid), len(recs))
	}
	start := time.Now()
	results := make([]Result, len(recs))
	var (
		mu     sync.Mutex
		done   int
		errCnt int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for i := range recs {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			r := Evaluate(recs[i])
			results[i] = r
			diag.ObserveDuration("checker", "check", time.Since(t0).Milliseconds())
			diag.IncCheck(checkLabel(r), checkResult(r))

			mu.Lock()
			done++
			if r.Error != "" {
				errCnt++
			}
			d, e := done, errCnt
			mu.Unlock()
			if t := diag.GetTerminal(); t != nil {
				t.TaskProgress(d, len(recs), e)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if t := diag.GetTerminal(); t != nil {
		t.TaskFinish(err == nil, done, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func checkLabel(r Result) string {
	if r.Constraint == "" {
		return "unparsed"
	}
	// 未知标识不作为标签值，避免基数失控
	if _, ok := registry.Constraint[r.Constraint]; !ok {
		return "unknown"
	}
	return r.Constraint
}

func checkResult(r Result) string {
	switch {
	case r.Error != "":
		return "error"
	case r.Pass:
		return "pass"
	}
	return "fail"
}

func encodeResults(results []Result) io.Reader {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range results {
		_ = enc.Encode(&results[i])
	}
	return &buf
}

// observeErr 统一记录错误日志与指标。
func observeErr(logger *diag.Logger, comp, msg, fileID string, err error) {
	code := diag.Classify(err)
	logger.ErrorWith(comp, string(code), msg+": "+err.Error(), nil, fileID, "")
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Splitter == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}

// SortedConstraints 返回汇总中出现过的约束标识（字典序）。
func (s Summary) SortedConstraints() []string {
	out := make([]string, 0, len(s.ByConstraint))
	for k := range s.ByConstraint {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String 返回单行概要，供终端输出。
func (s Summary) String() string {
	return fmt.Sprintf("files=%d total=%d passed=%d failed=%d errored=%d pass_rate=%.4f",
		s.Files, s.Total, s.Passed, s.Failed, s.Errored, s.PassRate)
}
