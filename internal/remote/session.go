// Package remote 提供远程传输会话（SFTP / FTP / dry-run）的抽象与实现，
// 以及断线后的有限次重连。
package remote

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"
)

var (
	ErrDirExists       = errors.New("remote directory already exists")
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
	ErrNotDirectory    = errors.New("remote path exists but is not a directory")
)

const (
	DefaultConnectTimeout = 120 * time.Second
	DefaultBackoff        = 2 * time.Second
	DefaultReconnectTries = 3
)

// Session 抽象一个已认证的远程连接，支持 mock 测试。
// 路径均为正斜杠分隔的远程路径。
type Session interface {
	MakeDir(path string) error
	Store(path string, r io.Reader) error
	Close() error
}

// DialFunc 用于建立（或重新建立）远程会话的函数类型
type DialFunc func(ctx context.Context) (Session, error)

// DialOptions 连接参数（主机、端口、认证信息、超时）
type DialOptions struct {
	Host           string
	Port           int
	Username       string
	Password       string
	Timeout        time.Duration
	KnownHostsPath string // 仅 SFTP：为空时不校验主机密钥
	TLS            bool   // 仅 FTP：显式 TLS (AUTH TLS)
}

func (o *DialOptions) withDefaults() {
	if o.Timeout == 0 {
		o.Timeout = DefaultConnectTimeout
	}
}

// IsDirExists 判断 MakeDir 的错误是否表示目录已存在
func IsDirExists(err error) bool {
	return errors.Is(err, ErrDirExists) || errors.Is(err, fs.ErrExist)
}
