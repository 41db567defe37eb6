package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"ifcheck/pkg/contract"
)

// LimitKey: 限流分组键（client + API key 摘要）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	RPM             int // requests per minute
	TPM             int // tokens per minute
	MaxTokensPerReq int // 单次请求 token 上限（含输入+预期输出），0 表示不限制
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
	Tokens   int // 预计 token（>=0）
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait 阻塞直到额度可用或 ctx 取消；超出单请求上限或桶容量时快速失败。
	Wait(ctx context.Context, a Ask) error
	// Try 非阻塞尝试；不足时返回 false 且不消耗额度。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (rpmAvail, tpmAvail int)
}

// NewGate 从静态配置构造闸门；clk 为空则使用 time.Now。
// 每个维度是一个容量为每分钟额度、按额度/60 每秒匀速补充的令牌桶。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	now := clk()
	for k, lim := range m {
		g.m[k] = newEntry(lim, now)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

type entry struct {
	mu  sync.Mutex
	lim Limits
	req *xrate.Limiter // nil 表示不启用
	tok *xrate.Limiter
}

func newEntry(lim Limits, now time.Time) *entry {
	return &entry{lim: lim, req: newBucket(lim.RPM, now), tok: newBucket(lim.TPM, now)}
}

func newBucket(perMinute int, now time.Time) *xrate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	l := xrate.NewLimiter(xrate.Limit(float64(perMinute)/60.0), perMinute)
	// 以注入时钟为起点，满桶
	l.SetLimitAt(now, l.Limit())
	return l
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		// 未配置的 key 不限额
		e = newEntry(Limits{}, g.clk())
		g.m[key] = e
	}
	return e
}

func (e *entry) check(a Ask) error {
	if a.Requests <= 0 || a.Tokens < 0 {
		return fmt.Errorf("rate: requests=%d tokens=%d: %w", a.Requests, a.Tokens, contract.ErrInvalidInput)
	}
	if e.lim.MaxTokensPerReq > 0 && a.Tokens > e.lim.MaxTokensPerReq {
		return fmt.Errorf("rate: %d tokens exceed per-request limit %d: %w", a.Tokens, e.lim.MaxTokensPerReq, contract.ErrBudgetExceeded)
	}
	if e.req != nil && a.Requests > e.req.Burst() {
		return fmt.Errorf("rate: %d requests exceed rpm %d: %w", a.Requests, e.req.Burst(), contract.ErrBudgetExceeded)
	}
	if e.tok != nil && a.Tokens > e.tok.Burst() {
		return fmt.Errorf("rate: %d tokens exceed tpm %d: %w", a.Tokens, e.tok.Burst(), contract.ErrBudgetExceeded)
	}
	return nil
}

// reserve 同时在两个维度预约额度，返回需要等待的时长与撤销函数。
func (e *entry) reserve(now time.Time, a Ask) (time.Duration, func()) {
	var rs []*xrate.Reservation
	var delay time.Duration
	for _, p := range []struct {
		l *xrate.Limiter
		n int
	}{{e.req, a.Requests}, {e.tok, a.Tokens}} {
		if p.l == nil || p.n == 0 {
			continue
		}
		r := p.l.ReserveN(now, p.n)
		rs = append(rs, r)
		if d := r.DelayFrom(now); d > delay {
			delay = d
		}
	}
	return delay, func() {
		for _, r := range rs {
			r.CancelAt(now)
		}
	}
}

func (g *gate) Try(a Ask) bool {
	e := g.get(a.Key)
	if e.check(a) != nil {
		return false
	}
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	delay, cancel := e.reserve(now, a)
	if delay > 0 {
		cancel()
		return false
	}
	return true
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if err := e.check(a); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := g.clk()
	e.mu.Lock()
	delay, cancel := e.reserve(now, a)
	e.mu.Unlock()
	if delay <= 0 {
		return nil
	}
	if dl, ok := ctx.Deadline(); ok && dl.Sub(time.Now()) < delay {
		e.mu.Lock()
		cancel()
		e.mu.Unlock()
		return fmt.Errorf("rate: wait %s exceeds context deadline: %w", delay, context.DeadlineExceeded)
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		cancel()
		e.mu.Unlock()
		return ctx.Err()
	}
}

// Snapshot 返回当前可用请求/令牌的向下取整估值（仅诊断）；未启用的维度为 0。
func (g *gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	avail := func(l *xrate.Limiter) int {
		if l == nil {
			return 0
		}
		v := l.TokensAt(now)
		if v < 0 {
			return 0
		}
		return int(v)
	}
	return avail(e.req), avail(e.tok)
}

var (
	_ Gate       = (*gate)(nil)
	_ Snapshoter = (*gate)(nil)
)
