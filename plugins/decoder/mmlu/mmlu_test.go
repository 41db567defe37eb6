package mmlu

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ifcheck/pkg/contract"
)

const good = `Question: Which planet is known as the Red Planet?
A: Venus
B: Mars
C: Jupiter
D: Saturn
Correct answer: B`

// TestDecodeSuccess 正常解码
func TestDecodeSuccess(t *testing.T) {
	d, _ := New(nil)
	q, err := d.Decode(context.Background(), "astronomy", contract.Raw{Text: good})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.Question != "Which planet is known as the Red Planet?" || q.Subject != "astronomy" || q.Answer != 1 {
		t.Fatalf("unexpected %+v", q)
	}
	if len(q.Choices) != 4 || q.Choices[3] != "Saturn" {
		t.Fatalf("choices %+v", q.Choices)
	}
}

// TestDecodeLastChoiceWins 同一字母重复时以最后一次为准，冒号后允许换行
func TestDecodeLastChoiceWins(t *testing.T) {
	d, _ := New(nil)
	src := "Question:\n  Pick one\nA: x\nB: y\nC: z\nD: w\nA: final\nCorrect answer: A"
	q, err := d.Decode(context.Background(), "s", contract.Raw{Text: src})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.Question != "Pick one" || q.Choices[0] != "final" || q.Answer != 0 {
		t.Fatalf("unexpected %+v", q)
	}
}

// TestDecodeInvalid 各类缺失
func TestDecodeInvalid(t *testing.T) {
	d, _ := New(nil)
	cases := map[string]string{
		"no question":   "A: 1\nB: 2\nC: 3\nD: 4\nCorrect answer: A",
		"three choices": "Question: q\nA: 1\nB: 2\nC: 3\nCorrect answer: A",
		"no answer":     "Question: q\nA: 1\nB: 2\nC: 3\nD: 4",
		"bad answer":    "Question: q\nA: 1\nB: 2\nC: 3\nD: 4\nCorrect answer: E",
		"garbage":       "invalid",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := d.Decode(context.Background(), "s", contract.Raw{Text: src}); !errors.Is(err, contract.ErrResponseInvalid) {
				t.Fatalf("expect ErrResponseInvalid, got %v", err)
			}
		})
	}
}

// TestDecodeAnswerText 开启 MatchAnswerText 时按选项文本匹配答案
func TestDecodeAnswerText(t *testing.T) {
	src := "Question: q\nA: Blue\nB: Red\nC: Green\nD: Black\nCorrect answer: Black"
	strict, _ := New(nil)
	q, err := strict.Decode(context.Background(), "s", contract.Raw{Text: src})
	if err != nil || q.Answer != 1 {
		t.Fatalf("默认按首字母匹配（Black→B）: %+v %v", q, err)
	}
	lenient, err := New(json.RawMessage(`{"match_answer_text":true}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	q, err = lenient.Decode(context.Background(), "s", contract.Raw{Text: src})
	if err != nil || q.Answer != 3 {
		t.Fatalf("应按文本匹配到 D: %+v %v", q, err)
	}
}

// TestNewUnknownOption 未知选项报错
func TestNewUnknownOption(t *testing.T) {
	if _, err := New(json.RawMessage(`{"x":1}`)); err == nil {
		t.Fatalf("未知字段应报错")
	}
}
