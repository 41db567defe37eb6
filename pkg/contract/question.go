package contract

import (
	"context"
	"fmt"
	"strings"
)

// ChoiceLabels: 选择题固定的四个选项标签。
var ChoiceLabels = [4]string{"A", "B", "C", "D"}

// Question: 四选一题目（MMLU 形状）。Answer 为 Choices 的下标（0..3）。
type Question struct {
	Question string   `json:"question"`
	Subject  string   `json:"subject"`
	Choices  []string `json:"choices"`
	Answer   int      `json:"answer"`
}

// Decoder: 将单个候选 Raw 解码为 Question；无法解析时返回包裹 ErrResponseInvalid 的错误。
type Decoder interface {
	Decode(ctx context.Context, subject string, raw Raw) (Question, error)
}

// ValidateQuestion 校验题目形状：题干非空、恰好四个非空选项、答案下标在范围内。
func ValidateQuestion(q Question) error {
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("question: empty stem: %w", ErrInvariantViolation)
	}
	if len(q.Choices) != len(ChoiceLabels) {
		return fmt.Errorf("question: want %d choices, got %d: %w", len(ChoiceLabels), len(q.Choices), ErrInvariantViolation)
	}
	for i, c := range q.Choices {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("question: choice %s empty: %w", ChoiceLabels[i], ErrInvariantViolation)
		}
	}
	if q.Answer < 0 || q.Answer >= len(ChoiceLabels) {
		return fmt.Errorf("question: answer %d out of range: %w", q.Answer, ErrInvariantViolation)
	}
	return nil
}

// AnswerLabel 返回答案对应的字母标签；越界返回空串。
func (q Question) AnswerLabel() string {
	if q.Answer < 0 || q.Answer >= len(ChoiceLabels) {
		return ""
	}
	return ChoiceLabels[q.Answer]
}
