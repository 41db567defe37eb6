package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	logPrefix = "ifcheck-"
	logExt    = ".jsonl"
	// CurrentLogName: 正在写入的日志文件；轮转后改名为 ifcheck-<UTC 时间戳>.jsonl。
	CurrentLogName = logPrefix + "current" + logExt

	defaultMaxBytes   = 10 * 1024 * 1024
	defaultMaxBackups = 5
)

// RotatingFile 是按大小轮转的 JSONL 日志 sink。
// 写入会使当前文件超过 maxBytes 时先轮转；轮转后只保留最新的 maxBackups 个历史文件。
type RotatingFile struct {
	dir        string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	f    *os.File
	size int64
}

// NewRotatingFile 创建 sink；maxBytes/maxBackups 非正时取默认值（10 MiB / 5）。
func NewRotatingFile(dir string, maxBytes int64, maxBackups int) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes, maxBackups: maxBackups}
}

// WriteLine 追加一行（自动补换行）。空文件不轮转，超长单行照常写入。
func (w *RotatingFile) WriteLine(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return err
	}
	line := append(b, '\n')
	if w.size > 0 && w.size+int64(len(line)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	n, err := w.f.Write(line)
	w.size += int64(n)
	return err
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, CurrentLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f, w.size = f, 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	return nil
}

// rotate 关闭并改名当前文件、清理多余历史文件，再重新打开当前文件。
func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.ensureOpen()
	}
	_ = w.f.Close()
	w.f = nil
	// 纳秒时间戳，同秒多次轮转不互相覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	cur := filepath.Join(w.dir, CurrentLogName)
	if err := os.Rename(cur, filepath.Join(w.dir, logPrefix+ts+logExt)); err != nil {
		return fmt.Errorf("rotate log: %w", err)
	}
	if err := w.prune(); err != nil {
		return err
	}
	return w.ensureOpen()
}

// prune 删除最旧的历史文件，直到数量不超过 maxBackups。时间戳名按字典序即时间序。
func (w *RotatingFile) prune() error {
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("prune logs: %w", err)
	}
	var old []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || name == CurrentLogName || !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, logExt) {
			continue
		}
		old = append(old, name)
	}
	if len(old) <= w.maxBackups {
		return nil
	}
	sort.Strings(old)
	for _, name := range old[:len(old)-w.maxBackups] {
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune logs: %w", err)
		}
	}
	return nil
}

// Close 关闭当前文件句柄；之后的写入会重新打开。
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
