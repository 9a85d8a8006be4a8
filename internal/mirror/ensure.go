package mirror

import (
	"fmt"

	"github.com/hwuu/sitepush/internal/remote"
)

// Ensurer 逐级创建远程目录，"已存在"视为成功。
// 本次运行中已确认存在的前缀会被记住，不再重复发送 MKD。
type Ensurer struct {
	ensured map[string]bool
}

func NewEnsurer() *Ensurer {
	return &Ensurer{ensured: make(map[string]bool)}
}

// Ensure 确保 dir 的每一级前缀都存在。
// 某一级创建失败（非"已存在"）时立即返回该错误，后续前缀不再尝试。
func (e *Ensurer) Ensure(session remote.Session, dir string) error {
	for _, prefix := range DirPrefixes(dir) {
		if e.ensured[prefix] {
			continue
		}
		if err := session.MakeDir(prefix); err != nil && !remote.IsDirExists(err) {
			return fmt.Errorf("ensure remote directory %s: %w", prefix, err)
		}
		e.ensured[prefix] = true
	}
	return nil
}
