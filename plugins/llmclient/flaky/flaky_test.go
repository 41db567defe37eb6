package flaky

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ifcheck/pkg/contract"
)

// TestSequence 限流 → 非法 → 正常
func TestSequence(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "flaky.log")
	raw, _ := json.Marshal(Options{LogPath: logPath})
	c, err := New(raw)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := contract.CompletionRequest{Prompt: contract.TextPrompt("x"), N: 2}
	if _, err := c.Complete(context.Background(), req); !errors.Is(err, contract.ErrRateLimited) {
		t.Fatalf("第一次应限流: %v", err)
	}
	out, err := c.Complete(context.Background(), req)
	if err != nil || len(out) != 1 || out[0].Text != "invalid" {
		t.Fatalf("第二次应返回非法文本: %+v %v", out, err)
	}
	out, err = c.Complete(context.Background(), req)
	if err != nil || len(out) != 2 || !strings.HasPrefix(out[0].Text, "Question: ") {
		t.Fatalf("第三次应正常: %+v %v", out, err)
	}
	b, _ := os.ReadFile(logPath)
	if string(b) != "rate_limited\ninvalid\nok\n" {
		t.Fatalf("日志不符: %q", b)
	}
}
