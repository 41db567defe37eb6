package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ifcheck/pkg/contract"
)

// funcNameKey: ground truth 中携带约束标识的键。
const funcNameKey = "func_name"

// ParseGroundTruth 解析 {"func_name": id, <参数>...} 形式的 ground truth。
// raw 可为 JSON 对象，或内容为该对象的 JSON 字符串。值为 null 的参数被丢弃。
// 返回的 args 为去掉 func_name 后的对象，可直接交给 Constraint 工厂。
func ParseGroundTruth(raw json.RawMessage) (id string, args json.RawMessage, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return "", nil, fmt.Errorf("ground truth: %v: %w", err, contract.ErrInvalidInput)
		}
		raw = json.RawMessage(strings.TrimSpace(inner))
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return "", nil, fmt.Errorf("ground truth: want object: %w", contract.ErrInvalidInput)
	}
	nameRaw, ok := fields[funcNameKey]
	if !ok {
		return "", nil, fmt.Errorf("ground truth: missing %s: %w", funcNameKey, contract.ErrInvalidInput)
	}
	if err := json.Unmarshal(nameRaw, &id); err != nil || id == "" {
		return "", nil, fmt.Errorf("ground truth: %s must be a non-empty string: %w", funcNameKey, contract.ErrInvalidInput)
	}
	delete(fields, funcNameKey)
	for k, v := range fields {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			delete(fields, k)
		}
	}
	args, err = json.Marshal(fields)
	if err != nil {
		return "", nil, err
	}
	return id, args, nil
}

// VerifyGroundTruth 解析 ground truth 并执行对应检查。
func VerifyGroundTruth(text string, groundTruth json.RawMessage) (string, contract.Result, error) {
	id, args, err := ParseGroundTruth(groundTruth)
	if err != nil {
		return "", contract.Result{}, err
	}
	res, err := Verify(id, text, args)
	return id, res, err
}
