package mmlu

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ifcheck/pkg/contract"
)

// Options: 解码宽松度。
type Options struct {
	// MatchAnswerText: "Correct answer:" 后的整行文本与某个选项完全一致时，
	// 以该选项为答案（优先于首字母匹配）。few-shot 样例以选项文本给出答案，模型常会模仿。
	MatchAnswerText bool `json:"match_answer_text"`
}

type decoder struct {
	matchText bool
}

// New 从原样 JSON Options 创建解码器（严格解码，未知字段报错）。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("mmlu decoder options: %w", err)
		}
	}
	return &decoder{matchText: opts.MatchAnswerText}, nil
}

var (
	questionRe   = regexp.MustCompile(`Question:\s*(.+)`)
	choiceRe     = regexp.MustCompile(`([A-D]):\s*(.+)`)
	answerRe     = regexp.MustCompile(`Correct answer:\s*([A-D])`)
	answerLineRe = regexp.MustCompile(`Correct answer:\s*(.+)`)
)

// Decode 解析 "Question/A/B/C/D/Correct answer" 形式的文本。
// 同一字母出现多次时以最后一次为准；必须恰好覆盖 A-D。
func (d *decoder) Decode(ctx context.Context, subject string, raw contract.Raw) (contract.Question, error) {
	if err := ctx.Err(); err != nil {
		return contract.Question{}, err
	}
	qm := questionRe.FindStringSubmatch(raw.Text)
	if qm == nil {
		return contract.Question{}, fmt.Errorf("mmlu: missing question: %w", contract.ErrResponseInvalid)
	}
	choices := map[string]string{}
	for _, m := range choiceRe.FindAllStringSubmatch(raw.Text, -1) {
		choices[m[1]] = strings.TrimSpace(m[2])
	}
	if len(choices) != len(contract.ChoiceLabels) {
		return contract.Question{}, fmt.Errorf("mmlu: want choices A-D, got %d: %w", len(choices), contract.ErrResponseInvalid)
	}
	q := contract.Question{
		Question: strings.TrimSpace(qm[1]),
		Subject:  subject,
		Choices:  make([]string, len(contract.ChoiceLabels)),
		Answer:   -1,
	}
	for i, l := range contract.ChoiceLabels {
		q.Choices[i] = choices[l]
	}
	if d.matchText {
		if lm := answerLineRe.FindStringSubmatch(raw.Text); lm != nil {
			text := strings.TrimSpace(lm[1])
			for i, c := range q.Choices {
				if c == text {
					q.Answer = i
					break
				}
			}
		}
	}
	if q.Answer < 0 {
		am := answerRe.FindStringSubmatch(raw.Text)
		if am == nil {
			return contract.Question{}, fmt.Errorf("mmlu: missing answer: %w", contract.ErrResponseInvalid)
		}
		q.Answer = int(am[1][0] - 'A')
	}
	if err := contract.ValidateQuestion(q); err != nil {
		return contract.Question{}, fmt.Errorf("mmlu: %v: %w", err, contract.ErrResponseInvalid)
	}
	return q, nil
}

var _ contract.Decoder = (*decoder)(nil)
