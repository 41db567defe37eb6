package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// OutputID 由输入 FileID 派生输出工件标识：原路径追加 suffix。
// 绝对路径、盘符路径与越出当前目录的路径只保留基名，保证结果可落在输出目录内。
func OutputID(fileID FileID, suffix string) ArtifactID {
	p := string(NormalizeFileID(string(fileID)))
	if path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") || hasVolume(p) {
		p = path.Base(p)
	}
	return ArtifactID(p + suffix)
}

func hasVolume(p string) bool {
	return len(p) >= 2 && p[1] == ':' && ((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}
