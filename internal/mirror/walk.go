package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Entry 本地目录树中的一个文件或目录
type Entry struct {
	// Path 可直接交给 afero.Fs 打开的本地路径
	Path string

	// RelPath 相对于本地根目录的路径，正斜杠分隔；根目录本身为 ""
	RelPath string

	IsDir bool
	Size  int64
}

// Filter 按 glob 排除条目。不含 / 的模式匹配任意层级的文件名，
// 含 / 的模式匹配完整相对路径（** 可跨目录）。
type Filter struct {
	byName []glob.Glob
	byPath []glob.Glob
}

// NewFilter 编译排除模式
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if !strings.Contains(pattern, "/") {
			f.byName = append(f.byName, g)
		} else {
			f.byPath = append(f.byPath, g)
		}
	}
	return f, nil
}

// Excluded 判断相对路径是否被排除；根目录永不排除
func (f *Filter) Excluded(rel string) bool {
	if f == nil || rel == "" {
		return false
	}
	name := rel[strings.LastIndex(rel, "/")+1:]
	for _, g := range f.byName {
		if g.Match(name) {
			return true
		}
	}
	for _, g := range f.byPath {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Walk 先序遍历 root：目录先于其内容，同级按字典序。
// 被排除的目录整体跳过；符号链接等非普通文件跳过。
// 读取失败的子目录记录警告后跳过，不中断遍历；fn 返回错误时遍历中止。
func Walk(fs afero.Fs, root string, filter *Filter, fn func(Entry) error) error {
	root, err := resolveRoot(fs, root)
	if err != nil {
		return fmt.Errorf("walk local root: %w", err)
	}

	return afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == root {
				return fmt.Errorf("walk local root %s: %w", root, err)
			}
			log.WithError(err).WithField("path", p).Warn("Skipping unreadable local path")
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = NormalizePath(filepath.ToSlash(rel))

		if filter.Excluded(rel) {
			log.WithField("path", rel).Debug("Excluded")
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() && !info.Mode().IsRegular() {
			log.WithFields(log.Fields{
				"path": rel,
				"mode": info.Mode().String(),
			}).Warn("Skipping non-regular file")
			return nil
		}

		return fn(Entry{
			Path:    p,
			RelPath: rel,
			IsDir:   info.IsDir(),
			Size:    info.Size(),
		})
	})
}

// resolveRoot 解析本地根目录本身的符号链接（如 dist -> build/）。
// afero.Walk 对根目录使用 Lstat，不解析的话整棵树会被当成链接跳过。
// 树内部的符号链接仍按非普通文件跳过。
func resolveRoot(fs afero.Fs, root string) (string, error) {
	if _, ok := fs.(*afero.OsFs); !ok {
		return root, nil
	}
	return filepath.EvalSymlinks(root)
}
