package mmlu

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"ifcheck/pkg/contract"
)

// Options 为合成 MMLU 题目 PromptBuilder 的最小配置。
// system 与 user 模板各自二选一（inline 优先），均为空时使用内置默认。
type Options struct {
	InlineSystemPrompt string `json:"inline_system_prompt"`
	SystemPromptPath   string `json:"system_prompt_path"`
	InlineUserTemplate string `json:"inline_user_template"`
	UserTemplatePath   string `json:"user_template_path"`
	// Variations: 开头指令的可选措辞（模板，可引用 {{.Subject}}）；为空使用内置四种。
	Variations []string `json:"variations"`
}

// Builder: 以 FewShot 构造 ChatPrompt（system+user）。
// 运行期不做 I/O；模板在构造期解析。
type Builder struct {
	sys        string
	userT      *template.Template
	variations []*template.Template
}

// New 创建 MMLU PromptBuilder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	sys, err := pick(o.InlineSystemPrompt, o.SystemPromptPath, defaultSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("system prompt read: %w", err)
	}
	userSrc, err := pick(o.InlineUserTemplate, o.UserTemplatePath, defaultUserTemplate)
	if err != nil {
		return nil, fmt.Errorf("user template read: %w", err)
	}
	userT, err := template.New("user").Option("missingkey=error").Parse(userSrc)
	if err != nil {
		return nil, fmt.Errorf("user template parse: %w", err)
	}
	vs := o.Variations
	if len(vs) == 0 {
		vs = defaultVariations
	}
	b := &Builder{sys: sys, userT: userT}
	for i, v := range vs {
		t, err := template.New(fmt.Sprintf("variation%d", i)).Parse(v)
		if err != nil {
			return nil, fmt.Errorf("variation %d parse: %w", i, err)
		}
		b.variations = append(b.variations, t)
	}
	return b, nil
}

func pick(inline, path, def string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if path != "" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(bs), nil
	}
	return def, nil
}

// Variations 返回可选措辞数量。
func (b *Builder) Variations() int { return len(b.variations) }

type userData struct {
	Subject     string
	Instruction string
	Examples    string
}

// Build: 基于 FewShot 构造 ChatPrompt（system+user）。
func (b *Builder) Build(ctx context.Context, in contract.FewShot) (contract.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Subject) == "" {
		return nil, fmt.Errorf("prompt: %w: empty subject", contract.ErrInvalidInput)
	}
	if len(in.Examples) == 0 {
		return nil, fmt.Errorf("prompt: %w: no few-shot examples", contract.ErrInvalidInput)
	}
	v := in.Variant % len(b.variations)
	if v < 0 {
		v += len(b.variations)
	}
	var instr bytes.Buffer
	if err := b.variations[v].Execute(&instr, struct{ Subject string }{in.Subject}); err != nil {
		return nil, fmt.Errorf("variation render: %v: %w", err, contract.ErrInvalidInput)
	}
	parts := make([]string, 0, len(in.Examples))
	for _, q := range in.Examples {
		s, err := FormatExample(q)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	var user bytes.Buffer
	data := userData{Subject: in.Subject, Instruction: instr.String(), Examples: strings.Join(parts, "\n")}
	if err := b.userT.Execute(&user, data); err != nil {
		return nil, fmt.Errorf("user render: %v: %w", err, contract.ErrInvalidInput)
	}
	return contract.ChatPrompt{
		{Role: "system", Content: b.sys},
		{Role: "user", Content: user.String()},
	}, nil
}

// FormatExample 将样例题目渲染为 few-shot 文本块。
// Correct answer 行写正确选项的文本（而非字母）。
func FormatExample(q contract.Question) (string, error) {
	if err := contract.ValidateQuestion(q); err != nil {
		return "", fmt.Errorf("prompt: example: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", q.Question)
	for i, l := range contract.ChoiceLabels {
		fmt.Fprintf(&sb, "%s: %s\n", l, q.Choices[i])
	}
	fmt.Fprintf(&sb, "Correct answer: %s\n", q.Choices[q.Answer])
	return sb.String(), nil
}

// EstimateOverheadTokens: 估算与样例无关的固定开销（system + 渲染空样例的 user 模板）。
func (b *Builder) EstimateOverheadTokens(estimate contract.TokenEstimator) int {
	if estimate == nil {
		return 0
	}
	var user bytes.Buffer
	_ = b.userT.Execute(&user, userData{})
	return estimate(b.sys) + estimate(user.String())
}

var _ contract.PromptBuilder = (*Builder)(nil)

const defaultSystemPrompt = "You are an AI assistant tasked with generating synthetic data for the MMLU dataset."

var defaultVariations = []string{
	"Generate a new multiple-choice question related to {{.Subject}}.",
	"Create a challenging new question on {{.Subject}}.",
	"Produce a unique question about {{.Subject}}.",
	"Design a new MMLU question related to {{.Subject}}.",
}

const defaultUserTemplate = `{{.Instruction}}
Here are examples of MMLU questions on the subject of {{.Subject}}:

{{.Examples}}
Create a new question on {{.Subject}} with four options and indicate the correct answer. Format your response as follows:
Question: [Your new question]
A: [Option A]
B: [Option B]
C: [Option C]
D: [Option D]
Correct answer: [Letter of correct option]
`
