package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"ifcheck/pkg/contract"
)

// Options 为 JSONL Splitter 的可选配置（最小必要）。
type Options struct {
	// MaxLineBytes: 单条记录最大字节数。0 表示不限制。
	MaxLineBytes int `json:"max_line_bytes"`
	// DisableArray: 关闭“整文件为 JSON 数组”的兼容模式。
	DisableArray bool `json:"disable_array"`
}

// Splitter 将 JSONL 流拆分为逐行 Record。
// 空白行被跳过但计入行号；首行 UTF-8 BOM 被去除。
// 兼容模式下，首个非空白字节为 '[' 的输入按 JSON 数组处理，每个元素一条记录。
type Splitter struct {
	maxBytes int
	array    bool
}

// New 创建 JSONL Splitter。
func New(opts *Options) *Splitter {
	s := &Splitter{array: true}
	if opts != nil {
		if opts.MaxLineBytes > 0 {
			s.maxBytes = opts.MaxLineBytes
		}
		s.array = !opts.DisableArray
	}
	return s
}

const bom = "\uFEFF"

// Split 将单个文件拆分为 []Record；Meta["line"] 为 1 基行号（数组模式下为元素序号）。
func (s *Splitter) Split(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Record, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(len(bom)); string(b) == bom {
		_, _ = br.Discard(len(bom))
	}
	if s.array {
		isArr, err := startsWithArray(br)
		if err != nil {
			return nil, err
		}
		if isArr {
			return s.splitArray(ctx, fileID, br)
		}
	}
	var recs []contract.Record
	var idx contract.Index
	lineNo := 0
	for {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		line, eof, err := readTrimmedLine(br)
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		lineNo++
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := s.checkLine(lineNo, line); err != nil {
			return nil, err
		}
		recs = append(recs, contract.Record{
			Index:  idx,
			FileID: fileID,
			Text:   line,
			Meta:   contract.Meta{"line": strconv.Itoa(lineNo)},
		})
		idx++
	}
	return recs, nil
}

func (s *Splitter) splitArray(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Record, error) {
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("jsonl: decode array: %w", err)
	}
	recs := make([]contract.Record, 0, len(items))
	for i, it := range items {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, it); err != nil {
			return nil, fmt.Errorf("jsonl: element %d: %w", i+1, err)
		}
		text := buf.String()
		if err := s.checkLine(i+1, text); err != nil {
			return nil, err
		}
		recs = append(recs, contract.Record{
			Index:  contract.Index(i),
			FileID: fileID,
			Text:   text,
			Meta:   contract.Meta{"line": strconv.Itoa(i + 1)},
		})
	}
	return recs, nil
}

func (s *Splitter) checkLine(lineNo int, line string) error {
	if !utf8.ValidString(line) {
		return fmt.Errorf("jsonl: line %d: invalid UTF-8", lineNo)
	}
	if s.maxBytes > 0 && len(line) > s.maxBytes {
		return fmt.Errorf("jsonl: line %d too large: %d > %d", lineNo, len(line), s.maxBytes)
	}
	return nil
}

// startsWithArray 窥视前导空白之后的首字节，不消费任何输入。
func startsWithArray(br *bufio.Reader) (bool, error) {
	for n := 1; ; n++ {
		b, err := br.Peek(n)
		if len(b) < n {
			if err == nil || errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
				return false, nil
			}
			return false, err
		}
		switch b[n-1] {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true, nil
		default:
			return false, nil
		}
	}
}

// readTrimmedLine 读取一行并去除结尾的 \n 或 \r\n；返回该行、是否 EOF。
func readTrimmedLine(br *bufio.Reader) (line string, eof bool, err error) {
	s, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			eof = true
		} else {
			return "", false, err
		}
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, eof && s == "", nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
