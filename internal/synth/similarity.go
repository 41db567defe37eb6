package synth

import (
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity 返回两段文本按字符比较的 SequenceMatcher 相似度（0..1）。
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// seenSet: 已接受的生成文本（跨学科、跨批次共享）。
type seenSet struct {
	mu    sync.Mutex
	texts []string
	exact map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{exact: map[string]struct{}{}}
}

// admit 过滤并登记候选：与任一已接受文本的相似度 ≥ threshold 或完全重复者被丢弃。
// 同一批内先接受的候选同样参与比较。
func (s *seenSet) admit(cands []string, threshold float64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range cands {
		if _, dup := s.exact[c]; dup {
			continue
		}
		if s.similar(c, threshold) {
			continue
		}
		s.exact[c] = struct{}{}
		s.texts = append(s.texts, c)
		out = append(out, c)
	}
	return out
}

func (s *seenSet) similar(c string, threshold float64) bool {
	cs := strings.Split(c, "")
	for _, t := range s.texts {
		m := difflib.NewMatcher(cs, strings.Split(t, ""))
		// 上界剪枝
		if m.RealQuickRatio() < threshold || m.QuickRatio() < threshold {
			continue
		}
		if m.Ratio() >= threshold {
			return true
		}
	}
	return false
}

func (s *seenSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}
