package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"ifcheck/internal/diag"
	"ifcheck/pkg/contract"
)

// seedRow: 种子题目行。answer 兼容整数下标与 "A".."D" 字母。
type seedRow struct {
	Question string          `json:"question"`
	Subject  string          `json:"subject"`
	Choices  []string        `json:"choices"`
	Answer   json.RawMessage `json:"answer"`
}

// Seeds: 按学科分组的种子题目；Subjects 保持首次出现的顺序。
type Seeds struct {
	Subjects []string
	By       map[string][]contract.Question
}

// LoadSeeds 读取全部输入并按学科分组，每个学科最多保留 perSubject 条（先到先得）。
// 无法解析或形状非法的行记录 warn 后跳过。
func LoadSeeds(ctx context.Context, r contract.Reader, s contract.Splitter, inputs []string, perSubject int, logger *diag.Logger) (Seeds, error) {
	out := Seeds{By: map[string][]contract.Question{}}
	err := r.Iterate(ctx, inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		recs, err := s.Split(ctx, fid, rc)
		if err != nil {
			return fmt.Errorf("splitter split: %w", err)
		}
		for _, rec := range recs {
			q, err := decodeSeed(rec.Text)
			if err != nil {
				logger.Warn("synth", string(diag.Classify(err)), "skip seed: "+err.Error(), map[string]string{
					"file_id": string(fid),
					"line":    rec.Meta["line"],
				})
				continue
			}
			cur, ok := out.By[q.Subject]
			if !ok {
				out.Subjects = append(out.Subjects, q.Subject)
			}
			if perSubject > 0 && len(cur) >= perSubject {
				continue
			}
			out.By[q.Subject] = append(cur, q)
		}
		return nil
	})
	if err != nil {
		return Seeds{}, err
	}
	return out, nil
}

func decodeSeed(text string) (contract.Question, error) {
	var row seedRow
	if err := json.Unmarshal([]byte(text), &row); err != nil {
		return contract.Question{}, fmt.Errorf("seed: %v: %w", err, contract.ErrInvalidInput)
	}
	ans, err := parseAnswer(row.Answer)
	if err != nil {
		return contract.Question{}, err
	}
	q := contract.Question{
		Question: row.Question,
		Subject:  strings.TrimSpace(row.Subject),
		Choices:  row.Choices,
		Answer:   ans,
	}
	if q.Subject == "" {
		return contract.Question{}, fmt.Errorf("seed: missing subject: %w", contract.ErrInvalidInput)
	}
	if err := contract.ValidateQuestion(q); err != nil {
		return contract.Question{}, err
	}
	return q, nil
}

func parseAnswer(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		for i, l := range contract.ChoiceLabels {
			if strings.EqualFold(s, l) {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("seed: bad answer %s: %w", string(raw), contract.ErrInvalidInput)
}
