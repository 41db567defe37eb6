package filesystem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"ifcheck/pkg/contract"
)

func boolp(b bool) *bool { return &b }

func noTmp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// TestWriteAtomic 原子写入并保留相对层级
func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Write(context.Background(), "data/a.results.jsonl", bytes.NewBufferString("{}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "data", "a.results.jsonl"))
	if err != nil || string(b) != "{}\n" {
		t.Fatalf("unexpected file %v %q", err, string(b))
	}
	noTmp(t, filepath.Join(dir, "data"))
}

// TestWriteAtomicReplaceExisting 目标已存在时原子写替换为新内容
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	for _, v := range []string{"v1", "v2"} {
		if err := w.Write(context.Background(), "out.json", bytes.NewBufferString(v)); err != nil {
			t.Fatalf("write %s: %v", v, err)
		}
	}
	b, _ := os.ReadFile(filepath.Join(dir, "out.json"))
	if string(b) != "v2" {
		t.Fatalf("expect replaced content v2, got %q", string(b))
	}
	noTmp(t, dir)
}

// TestWriteFlat 扁平化仅保留文件名
func TestWriteFlat(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir, Flat: boolp(true), Atomic: boolp(false)})
	if err := w.Write(context.Background(), "deep/er/x.json", bytes.NewBufferString("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "x.json")); err != nil {
		t.Fatalf("flat file not created: %v", err)
	}
}

// TestWriteNoClobber 拒绝覆盖已有文件（原子/非原子两种模式）
func TestWriteNoClobber(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		dir := t.TempDir()
		w, _ := New(&Options{OutputDir: dir, NoClobber: true, Atomic: boolp(atomic)})
		if err := w.Write(context.Background(), "c.json", bytes.NewBufferString("1")); err != nil {
			t.Fatalf("first write: %v", err)
		}
		err := w.Write(context.Background(), "c.json", bytes.NewBufferString("2"))
		if !errors.Is(err, os.ErrExist) {
			t.Fatalf("atomic=%v 期望 ErrExist, got %v", atomic, err)
		}
		b, _ := os.ReadFile(filepath.Join(dir, "c.json"))
		if string(b) != "1" {
			t.Fatalf("内容被覆盖: %q", b)
		}
	}
}

// TestMapPathInvalid 路径越界
func TestMapPathInvalid(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	cases := []string{"..", ".", "../bad", "a/../../bad"}
	if runtime.GOOS == "windows" {
		cases = append(cases, "C:\\abs")
	} else {
		cases = append(cases, "/abs")
	}
	for _, id := range cases {
		if _, err := w.mapPath(contract.ArtifactID(id)); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("id %s expect invalid, got %v", id, err)
		}
	}
	if err := w.Write(context.Background(), "../bad", bytes.NewBufferString("x")); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
}

// TestWriteStdout "-" 模式写到标准输出
func TestWriteStdout(t *testing.T) {
	w, err := New(&Options{OutputDir: StdoutDir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var buf bytes.Buffer
	w.stdout = &buf
	_ = w.Write(context.Background(), "a", strings.NewReader("one\n"))
	_ = w.Write(context.Background(), "b", strings.NewReader("two\n"))
	if buf.String() != "one\ntwo\n" {
		t.Fatalf("stdout 内容不符: %q", buf.String())
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.txt", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx error, got %v", err)
	}
}

// TestNewInvalid 参数缺失
func TestNewInvalid(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect error for nil opts")
	}
	if _, err := New(&Options{OutputDir: "  "}); err == nil {
		t.Fatalf("expect error for empty output dir")
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 原子写入时拷贝失败不残留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	if err := w.Write(context.Background(), "a.txt", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}

// TestReaderWithCtxCancel reader 在读取前取消
func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	if _, err := io.ReadAll(r); err == nil {
		t.Fatalf("expect ctx error")
	}
}
