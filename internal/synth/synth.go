package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ifcheck/internal/diag"
	"ifcheck/internal/prompt"
	"ifcheck/internal/rate"
	"ifcheck/pkg/contract"
)

// 合成流水线：种子 → 按学科分轮生成（有界并发 + 限流 + 重试）→ 相似度去重 → 解析 → 写出 JSON 数组。
// - 学科按种子中首次出现的顺序串行处理；同一学科内的批次并发。
// - 去重集合跨学科共享。
// - 单批重试耗尽视为空批；整轮为空即结束该学科。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader        contract.Reader
	Splitter      contract.Splitter
	PromptBuilder contract.PromptBuilder
	LLM           contract.LLMClient
	Decoder       contract.Decoder
	Writer        contract.Writer
}

// Settings 运行期配置；零值字段由 Defaults 补齐。
type Settings struct {
	Inputs []string

	NumCompletions      int
	MaxParallel         int
	MaxRetries          int
	RetryDelay          time.Duration
	Temperature         float64
	TemperatureJitter   float64
	MaxTokens           int
	TopP                float64
	ExamplesPerSubject  int
	FewShot             int
	SimilarityThreshold float64
	// Subjects 非空时仅处理列出的学科（仍按种子顺序）。
	Subjects []string
	// Seed 为 0 时使用当前时间。
	Seed  int64
	Model string

	// OutputID 为空时为 synthetic_mmlu_data_<model>.json。
	OutputID      contract.ArtifactID
	BytesPerToken int

	Gate    rate.Gate
	GateKey rate.LimitKey
}

// 默认值
const (
	DefaultNumCompletions      = 50
	DefaultMaxParallel         = 50
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 5 * time.Second
	DefaultTemperature         = 0.7
	DefaultTemperatureJitter   = 0.1
	DefaultMaxTokens           = 500
	DefaultTopP                = 0.95
	DefaultExamplesPerSubject  = 1000
	DefaultFewShot             = 10
	DefaultSimilarityThreshold = 0.8
	DefaultModel               = "gpt-4"
)

// Defaults 返回补齐零值后的副本。
func (s Settings) Defaults() Settings {
	if s.NumCompletions <= 0 {
		s.NumCompletions = DefaultNumCompletions
	}
	if s.MaxParallel <= 0 {
		s.MaxParallel = DefaultMaxParallel
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryDelay < 0 {
		s.RetryDelay = 0
	}
	if s.Temperature <= 0 {
		s.Temperature = DefaultTemperature
	}
	if s.TemperatureJitter < 0 {
		s.TemperatureJitter = 0
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.TopP <= 0 {
		s.TopP = DefaultTopP
	}
	if s.ExamplesPerSubject <= 0 {
		s.ExamplesPerSubject = DefaultExamplesPerSubject
	}
	if s.FewShot <= 0 {
		s.FewShot = DefaultFewShot
	}
	if s.SimilarityThreshold <= 0 {
		s.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.OutputID == "" {
		s.OutputID = OutputName(s.Model)
	}
	return s
}

// OutputName 返回模型对应的默认输出工件名。
func OutputName(model string) contract.ArtifactID {
	return contract.ArtifactID("synthetic_mmlu_data_" + model + ".json")
}

// Run 执行合成并写出结果；返回解析成功的全部题目（按学科顺序）。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]contract.Question, error) {
	if err := sanity(comp, set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	set = set.Defaults()

	stimer := logger.Start("reader", "load seeds")
	seeds, err := LoadSeeds(ctx, comp.Reader, comp.Splitter, set.Inputs, set.FewShot+set.ExamplesPerSubject, logger)
	if err != nil {
		observeErr(logger, "reader", "load seeds failed", err)
		return nil, fmt.Errorf("load seeds: %w", err)
	}
	stimer.Finish("seeds loaded", int64(len(seeds.Subjects)))
	diag.IncOp("reader", "finish", "success")

	seed := set.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &generator{
		comp: comp,
		set:  set,
		log:  logger,
		seen: newSeenSet(),
		rng:  newRand(seed),
	}

	var all []contract.Question
	for _, subject := range selectSubjects(seeds.Subjects, set.Subjects) {
		raws, err := g.processSubject(ctx, subject, seeds.By[subject])
		if err != nil {
			return nil, err
		}
		t0 := time.Now()
		qs := g.decode(ctx, subject, raws)
		logger.InfoFinish("decoder", "subject "+subject+" decoded "+strconv.Itoa(len(qs))+"/"+strconv.Itoa(len(raws)), t0, int64(len(qs)))
		all = append(all, qs...)
	}
	if all == nil {
		all = []contract.Question{}
	}

	b, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return nil, err
	}
	wtimer := logger.StartWith("writer", "write", string(set.OutputID), "")
	if err := comp.Writer.Write(ctx, set.OutputID, bytes.NewReader(b)); err != nil {
		observeErr(logger, "writer", "write failed", err)
		return nil, fmt.Errorf("writer write: %w", err)
	}
	wtimer.Finish("write", int64(len(all)))
	diag.IncOp("writer", "finish", "success")
	return all, nil
}

type generator struct {
	comp Components
	set  Settings
	log  *diag.Logger
	seen *seenSet

	rngMu sync.Mutex
	rng   *rand.Rand
}

// processSubject 分轮生成一个学科的原始补全，至多 ExamplesPerSubject 条。
func (g *generator) processSubject(ctx context.Context, subject string, samples []contract.Question) ([]string, error) {
	limit := g.set.ExamplesPerSubject
	per := g.set.NumCompletions
	if t := diag.GetTerminal(); t != nil {
		t.TaskStart(subject, limit)
	}
	start := time.Now()
	sem := semaphore.NewWeighted(int64(g.set.MaxParallel))

	var results []string
	var err error
	for len(results) < limit {
		remaining := limit - len(results)
		n := min(g.set.MaxParallel, (remaining+per-1)/per)
		batches := make([][]string, n)
		eg, ectx := errgroup.WithContext(ctx)
		for i := 0; i < n; i++ {
			i := i
			eg.Go(func() error {
				if err := sem.Acquire(ectx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				b, err := g.batch(ectx, subject, samples)
				batches[i] = b
				return err
			})
		}
		if err = eg.Wait(); err != nil {
			break
		}
		empty := true
		for _, b := range batches {
			if len(b) > 0 {
				empty = false
			}
			results = append(results, b...)
		}
		if t := diag.GetTerminal(); t != nil {
			t.TaskProgress(min(len(results), limit), limit, 0)
		}
		if empty {
			g.log.Warn("synth", "", "round produced nothing, stop subject "+subject, map[string]string{
				"subject":   subject,
				"generated": strconv.Itoa(len(results)),
			})
			break
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	if t := diag.GetTerminal(); t != nil {
		t.TaskFinish(err == nil, len(results), time.Since(start))
	}
	if err != nil {
		observeErr(g.log, "synth", "subject "+subject+" failed", err)
		return nil, fmt.Errorf("synth %s: %w", subject, err)
	}
	return results, nil
}

// batch 生成一批去重后的补全。LLM 错误按 MaxRetries 重试，耗尽返回空批；
// 限流闸门错误与取消直接返回。
func (g *generator) batch(ctx context.Context, subject string, samples []contract.Question) ([]string, error) {
	batchID := uuid.NewString()
	for attempt := 1; attempt <= g.set.MaxRetries; attempt++ {
		examples, variant, jitter := g.draw(samples)
		p, err := g.comp.PromptBuilder.Build(ctx, contract.FewShot{Subject: subject, Examples: examples, Variant: variant})
		if err != nil {
			return nil, fmt.Errorf("prompt build: %w", err)
		}
		if g.set.Gate != nil {
			tokens := prompt.AskTokens(g.comp.PromptBuilder, g.set.BytesPerToken, examples, g.set.MaxTokens, g.set.NumCompletions)
			if err := g.set.Gate.Wait(ctx, rate.Ask{Key: g.set.GateKey, Requests: 1, Tokens: tokens}); err != nil {
				return nil, fmt.Errorf("rate gate: %w", err)
			}
		}

		timer := g.log.StartWith("llm", "complete", "", batchID)
		raws, err := g.comp.LLM.Complete(ctx, contract.CompletionRequest{
			Prompt:      p,
			Temperature: float32(clampTemperature(g.set.Temperature + jitter)),
			TopP:        float32(g.set.TopP),
			MaxTokens:   g.set.MaxTokens,
			N:           g.set.NumCompletions,
		})
		if err == nil {
			timer.Finish("complete", int64(len(raws)))
			diag.IncOp("llm", "finish", "success")
			cands := make([]string, 0, len(raws))
			for _, r := range raws {
				cands = append(cands, r.Text)
			}
			kept := g.seen.admit(cands, g.set.SimilarityThreshold)
			g.log.DebugStart("synth", "filtered", "", batchID, map[string]string{
				"subject": subject,
				"raw":     strconv.Itoa(len(cands)),
				"kept":    strconv.Itoa(len(kept)),
			})
			return kept, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		code := diag.Classify(err)
		g.log.ErrorWithKV("llm", string(code), "complete failed: "+err.Error(), timer.Since(), "", batchID, map[string]string{
			"subject": subject,
			"attempt": strconv.Itoa(attempt),
		})
		diag.IncOp("llm", "error", "error")
		diag.IncError("llm", string(code))
		if attempt < g.set.MaxRetries {
			if err := sleep(ctx, g.set.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	g.log.Warn("synth", "", "retries exhausted, empty batch", map[string]string{
		"subject":  subject,
		"batch_id": batchID,
	})
	return nil, nil
}

// draw 不放回抽取 few-shot 样例，并选择措辞与温度扰动。
func (g *generator) draw(samples []contract.Question) ([]contract.Question, int, float64) {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	k := min(g.set.FewShot, len(samples))
	idx := g.rng.Perm(len(samples))[:k]
	ex := make([]contract.Question, k)
	for i, j := range idx {
		ex[i] = samples[j]
	}
	variant := g.rng.Intn(1 << 16)
	jitter := (g.rng.Float64()*2 - 1) * g.set.TemperatureJitter
	return ex, variant, jitter
}

// decode 解析原始补全；无法解析者丢弃并记录 debug。
func (g *generator) decode(ctx context.Context, subject string, raws []string) []contract.Question {
	out := make([]contract.Question, 0, len(raws))
	for _, r := range raws {
		q, err := g.comp.Decoder.Decode(ctx, subject, contract.Raw{Text: r})
		if err != nil {
			diag.IncOp("decoder", "drop", "error")
			g.log.DebugStart("decoder", "drop: "+err.Error(), "", "", map[string]string{"subject": subject})
			continue
		}
		diag.IncOp("decoder", "finish", "success")
		out = append(out, q)
	}
	return out
}

func newRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

func selectSubjects(all, only []string) []string {
	if len(only) == 0 {
		return all
	}
	want := make(map[string]struct{}, len(only))
	for _, s := range only {
		want[s] = struct{}{}
	}
	var out []string
	for _, s := range all {
		if _, ok := want[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func clampTemperature(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 2 {
		return 2
	}
	return t
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}

func observeErr(logger *diag.Logger, comp, msg string, err error) {
	code := diag.Classify(err)
	logger.ErrorWith(comp, string(code), msg+": "+err.Error(), nil, "", "")
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Splitter == nil || c.PromptBuilder == nil || c.LLM == nil || c.Decoder == nil || c.Writer == nil {
		return errors.New("synth: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("synth: empty inputs")
	}
	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("synth: similarity_threshold out of range: %w", contract.ErrInvalidInput)
	}
	return nil
}
