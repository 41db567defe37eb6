package mock

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"ifcheck/pkg/contract"
)

var shape = regexp.MustCompile(`(?s)^Question: .+\nA: .+\nB: .+\nC: .+\nD: .+\nCorrect answer: [A-D]$`)

// TestMMLUMode 默认模式产出 N 个格式合法且互不相同的题目
func TestMMLUMode(t *testing.T) {
	c, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := c.Complete(context.Background(), contract.CompletionRequest{Prompt: contract.TextPrompt("x"), N: 5})
	if err != nil || len(out) != 5 {
		t.Fatalf("complete: %v %d", err, len(out))
	}
	seen := map[string]bool{}
	for _, r := range out {
		if !shape.MatchString(r.Text) {
			t.Fatalf("格式不符: %q", r.Text)
		}
		if seen[r.Text] {
			t.Fatalf("候选重复: %q", r.Text)
		}
		seen[r.Text] = true
	}
}

// TestDeterministic 相同种子产出相同序列
func TestDeterministic(t *testing.T) {
	a, _ := New(json.RawMessage(`{"seed":7}`))
	b, _ := New(json.RawMessage(`{"seed":7}`))
	req := contract.CompletionRequest{Prompt: contract.TextPrompt("x"), N: 2}
	ra, _ := a.Complete(context.Background(), req)
	rb, _ := b.Complete(context.Background(), req)
	if ra[0] != rb[0] || ra[1] != rb[1] {
		t.Fatalf("相同种子输出不一致")
	}
}

// TestEchoMode 回显最后一条消息，N<=0 视为 1
func TestEchoMode(t *testing.T) {
	c, _ := New(json.RawMessage(`{"response_mode":"echo"}`))
	out, err := c.Complete(context.Background(), contract.CompletionRequest{Prompt: contract.ChatPrompt{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}}})
	if err != nil || len(out) != 1 || out[0].Text != "u" {
		t.Fatalf("unexpected %+v %v", out, err)
	}
}

// TestUnknownMode 未知模式报错
func TestUnknownMode(t *testing.T) {
	if _, err := New(json.RawMessage(`{"response_mode":"line_map"}`)); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect invalid input, got %v", err)
	}
}

// TestCanceled 取消的 ctx 直接返回
func TestCanceled(t *testing.T) {
	c, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Complete(ctx, contract.CompletionRequest{N: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect canceled, got %v", err)
	}
}
