package mmlu

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ifcheck/pkg/contract"
)

func sample() contract.Question {
	return contract.Question{Question: "What is 2+2?", Subject: "math", Choices: []string{"3", "4", "5", "6"}, Answer: 1}
}

// TestBuildDefault 默认模板：system+user，含措辞、样例与格式说明
func TestBuildDefault(t *testing.T) {
	b, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if b.Variations() != 4 {
		t.Fatalf("默认措辞应为 4 种")
	}
	p, err := b.Build(context.Background(), contract.FewShot{Subject: "algebra", Examples: []contract.Question{sample(), sample()}, Variant: 5})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cp, ok := p.(contract.ChatPrompt)
	if !ok || len(cp) != 2 || cp[0].Role != "system" || cp[1].Role != "user" {
		t.Fatalf("unexpected prompt %#v", p)
	}
	u := cp[1].Content
	if !strings.HasPrefix(u, "Create a challenging new question on algebra.") {
		t.Fatalf("措辞选择错误（5 mod 4 = 1）: %q", u)
	}
	if strings.Count(u, "Question: What is 2+2?") != 2 || !strings.Contains(u, "Correct answer: 4\n") {
		t.Fatalf("样例渲染错误: %s", u)
	}
	if !strings.Contains(u, "Correct answer: [Letter of correct option]") {
		t.Fatalf("格式说明缺失")
	}
}

// TestBuildInvalid 空学科/空样例/非法样例
func TestBuildInvalid(t *testing.T) {
	b, _ := New(nil)
	bad := sample()
	bad.Choices = bad.Choices[:2]
	cases := []contract.FewShot{
		{Subject: " ", Examples: []contract.Question{sample()}},
		{Subject: "x"},
		{Subject: "x", Examples: []contract.Question{bad}},
	}
	for i, in := range cases {
		if _, err := b.Build(context.Background(), in); err == nil {
			t.Fatalf("case %d 应报错", i)
		}
	}
	if _, err := b.Build(context.Background(), contract.FewShot{Subject: "x", Examples: []contract.Question{bad}}); !errors.Is(err, contract.ErrInvariantViolation) {
		t.Fatalf("非法样例应包裹 ErrInvariantViolation: %v", err)
	}
}

// TestCustomTemplates 自定义模板（inline 与文件）
func TestCustomTemplates(t *testing.T) {
	dir := t.TempDir()
	sp := filepath.Join(dir, "sys.txt")
	os.WriteFile(sp, []byte("SYS"), 0o644)
	b, err := New(&Options{SystemPromptPath: sp, InlineUserTemplate: "{{.Instruction}}|{{.Subject}}", Variations: []string{"V {{.Subject}}"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, err := b.Build(context.Background(), contract.FewShot{Subject: "law", Examples: []contract.Question{sample()}, Variant: -3})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cp := p.(contract.ChatPrompt)
	if cp[0].Content != "SYS" || cp[1].Content != "V law|law" {
		t.Fatalf("unexpected %#v", cp)
	}
	if _, err := New(&Options{SystemPromptPath: filepath.Join(dir, "missing")}); err == nil {
		t.Fatalf("缺失文件应报错")
	}
	if _, err := New(&Options{InlineUserTemplate: "{{"}); err == nil {
		t.Fatalf("非法模板应报错")
	}
}

// TestEstimateOverhead 固定开销估算
func TestEstimateOverhead(t *testing.T) {
	b, _ := New(nil)
	if b.EstimateOverheadTokens(nil) != 0 {
		t.Fatalf("nil 估算器应返回 0")
	}
	n := b.EstimateOverheadTokens(func(s string) int { return len(s) })
	if n <= len(defaultSystemPrompt) {
		t.Fatalf("开销估算过小: %d", n)
	}
}
