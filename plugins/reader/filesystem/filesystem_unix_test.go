//go:build !windows

package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWalkDirNonRegular 非常规文件被忽略（mkfifo 仅 Unix）
func TestWalkDirNonRegular(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "pipe.jsonl"), 0o644))
	ids, err := collect(t, New(nil), []string{root})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// TestSymlinks 指向文件的链接被读取，指向目录的链接被忽略。
func TestSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "data", "t.jsonl")
	write(t, target, "{}")
	scan := filepath.Join(dir, "scan")
	require.NoError(t, os.Mkdir(scan, 0o755))
	require.NoError(t, os.Symlink(target, filepath.Join(scan, "l.jsonl")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "data"), filepath.Join(scan, "dirlink.jsonl")))

	ids, err := collect(t, New(nil), []string{scan})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.True(t, strings.HasSuffix(ids[0], "l.jsonl"))

	ids, err = collect(t, New(nil), []string{filepath.Join(scan, "dirlink.jsonl")})
	require.NoError(t, err)
	assert.Empty(t, ids)
}
