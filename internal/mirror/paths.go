package mirror

import (
	"path"
	"strings"
)

// NormalizePath 将本地相对路径转换为正斜杠形式（无论本地系统使用何种分隔符）。
// "." 和空路径返回 ""。
func NormalizePath(rel string) string {
	p := strings.ReplaceAll(rel, `\`, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// RemotePath 由远程根目录和本地相对路径得到远程路径
func RemotePath(remoteRoot, rel string) string {
	root := NormalizePath(remoteRoot)
	rel = strings.TrimPrefix(NormalizePath(rel), "/")
	switch {
	case root == "":
		return rel
	case rel == "":
		return root
	default:
		return path.Join(root, rel)
	}
}

// DirPrefixes 返回目录路径的逐级前缀：a/b/c → [a a/b a/b/c]。
// 绝对路径保留前导 /；空路径、"." 和 "/" 返回 nil。
func DirPrefixes(dir string) []string {
	p := NormalizePath(dir)
	if p == "" || p == "/" {
		return nil
	}

	lead := ""
	if strings.HasPrefix(p, "/") {
		lead = "/"
		p = strings.TrimPrefix(p, "/")
	}

	segments := strings.Split(p, "/")
	prefixes := make([]string, 0, len(segments))
	current := ""
	for _, seg := range segments {
		if current == "" {
			current = lead + seg
		} else {
			current = current + "/" + seg
		}
		prefixes = append(prefixes, current)
	}
	return prefixes
}
