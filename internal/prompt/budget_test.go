package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"ifcheck/pkg/contract"
)

func TestMakeEstimatorDefault(t *testing.T) {
	est := MakeEstimator(0)
	if est("abcdef") != 2 { // 6 字节 -> 2 token
		t.Fatalf("估算错误")
	}
	if est("") != 0 {
		t.Fatalf("空串应为 0")
	}
}

func TestEffectiveMaxTokensZero(t *testing.T) {
	eff, over := EffectiveMaxTokens(&mockPB{}, 0, 0)
	if eff != 0 || over != 0 {
		t.Fatalf("应返回 0,0")
	}
}

type mockPB struct{ overhead int }

func (m *mockPB) Build(_ context.Context, _ contract.FewShot) (contract.Prompt, error) {
	return nil, nil
}

func (m *mockPB) EstimateOverheadTokens(contract.TokenEstimator) int { return m.overhead }

func TestEffectiveMaxTokensOverhead(t *testing.T) {
	eff, over := EffectiveMaxTokens(&mockPB{overhead: 5}, 4, 10)
	if eff != 5 || over != 5 {
		t.Fatalf("预期 5,5 得到 %d,%d", eff, over)
	}
}

func TestAskTokens(t *testing.T) {
	q := contract.Question{Question: "abcd", Choices: []string{"ab", "cd", "ef", "gh"}}
	// 开销 10 + 题干 1 + 4 个选项各 1 + 输出 20*2
	assert.Equal(t, 55, AskTokens(&mockPB{overhead: 10}, 4, []contract.Question{q}, 20, 2))
	// n<1 视为 1；maxTokens<=0 不计输出
	assert.Equal(t, 10, AskTokens(&mockPB{overhead: 10}, 4, nil, 0, 0))
	assert.Equal(t, 30, AskTokens(&mockPB{overhead: 10}, 4, nil, 20, 0))
}
