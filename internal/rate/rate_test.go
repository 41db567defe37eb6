package rate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ifcheck/pkg/contract"
)

// 超过 RPM/TPM
func TestGateTryLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	clk := func() time.Time { return now }
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1, TPM: 10, MaxTokensPerReq: 5}}, clk)
	if !g.Try(Ask{Key: "k", Requests: 1, Tokens: 3}) {
		t.Fatalf("首次应通过")
	}
	if g.Try(Ask{Key: "k", Requests: 1, Tokens: 3}) {
		t.Fatalf("应因 RPM 拒绝")
	}
	if g.Try(Ask{Key: "k", Requests: 1, Tokens: 6}) {
		t.Fatalf("应因单请求上限拒绝")
	}
	now = now.Add(time.Minute)
	if !g.Try(Ask{Key: "k", Requests: 1, Tokens: 3}) {
		t.Fatalf("一分钟后应恢复")
	}
}

// 失败的 Try 不消耗另一维度的额度
func TestGateTryDoesNotLeak(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 10, TPM: 10}}, func() time.Time { return now })
	require.True(t, g.Try(Ask{Key: "k", Requests: 1, Tokens: 8}))
	require.False(t, g.Try(Ask{Key: "k", Requests: 1, Tokens: 5}))
	rpm, tpm := g.(Snapshoter).Snapshot("k")
	assert.Equal(t, 9, rpm)
	assert.Equal(t, 2, tpm)
}

func TestGateWaitCancel(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1}}, func() time.Time { return now })
	require.NoError(t, g.Wait(context.Background(), Ask{Key: "k", Requests: 1}))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := g.Wait(ctx, Ask{Key: "k", Requests: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGateWaitDeadline(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1}}, nil)
	require.NoError(t, g.Wait(context.Background(), Ask{Key: "k", Requests: 1}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, Ask{Key: "k", Requests: 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateWaitShortDelay(t *testing.T) {
	// 6000 rpm = 100/s，第二次等待约 10ms
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 6000}}, nil)
	for i := 0; i < 6000; i++ {
		require.True(t, g.Try(Ask{Key: "k", Requests: 1}))
	}
	start := time.Now()
	require.NoError(t, g.Wait(context.Background(), Ask{Key: "k", Requests: 1}))
	assert.Less(t, time.Since(start), time.Second)
}

func TestGateInvalidAsk(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 2, TPM: 100, MaxTokensPerReq: 50}}, nil)
	ctx := context.Background()
	assert.ErrorIs(t, g.Wait(ctx, Ask{Key: "k", Requests: 0}), contract.ErrInvalidInput)
	assert.ErrorIs(t, g.Wait(ctx, Ask{Key: "k", Requests: 1, Tokens: -1}), contract.ErrInvalidInput)
	assert.ErrorIs(t, g.Wait(ctx, Ask{Key: "k", Requests: 1, Tokens: 60}), contract.ErrBudgetExceeded)
	assert.ErrorIs(t, g.Wait(ctx, Ask{Key: "k", Requests: 3}), contract.ErrBudgetExceeded)
	assert.False(t, g.Try(Ask{Key: "k", Requests: 0}))
}

func TestGateUnconfiguredKey(t *testing.T) {
	g := NewGate(nil, nil)
	for i := 0; i < 100; i++ {
		require.True(t, g.Try(Ask{Key: "free", Requests: 1, Tokens: 1 << 20}))
	}
	rpm, tpm := g.(Snapshoter).Snapshot("free")
	assert.Zero(t, rpm)
	assert.Zero(t, tpm)
}

func TestDeriveKeyFromProviderOptions(t *testing.T) {
	t.Setenv("TEST_KEY", "abc")
	raw, _ := json.Marshal(map[string]any{"api_key_env": "TEST_KEY"})
	k, err := DeriveKeyFromProviderOptions("openai", raw)
	if err != nil || k == "" {
		t.Fatalf("派生失败: %v", err)
	}
	k2, err := DeriveKeyFromProviderOptions("openai", json.RawMessage(`{"api_key":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, k, k2, "相同 key 应得到相同分组")

	t.Setenv("OPENAI_API_KEY", "")
	if _, err := DeriveKeyFromProviderOptions("openai", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("缺少 key 应失败")
	}
	t.Setenv("OPENAI_API_KEY", "zzz")
	_, err = DeriveKeyFromProviderOptions("openai", json.RawMessage(`{}`))
	require.NoError(t, err, "默认读取 OPENAI_API_KEY")

	km, err := DeriveKeyFromProviderOptions("mock", nil)
	require.NoError(t, err)
	kf, err := DeriveKeyFromProviderOptions("flaky", nil)
	require.NoError(t, err)
	assert.NotEqual(t, km, kf)
}
