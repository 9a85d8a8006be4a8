package remote

// sftp.go 提供基于 SSH 的 SFTP 会话实现：密码 / keyboard-interactive 认证，
// 可选 known_hosts 主机密钥校验。

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sftpSession 真实 SFTP 会话实现
type sftpSession struct {
	client *sftp.Client
	conn   io.Closer // 底层 SSH 连接，测试中可为 nil
}

// NewSFTPDialFunc 创建真实 SFTP 连接的 DialFunc
func NewSFTPDialFunc(opts DialOptions) DialFunc {
	opts.withDefaults()

	return func(ctx context.Context) (Session, error) {
		hostKeyCallback, err := newHostKeyCallback(opts.KnownHostsPath)
		if err != nil {
			return nil, err
		}

		config := &ssh.ClientConfig{
			User: opts.Username,
			Auth: []ssh.AuthMethod{
				ssh.Password(opts.Password),
				ssh.KeyboardInteractive(answerWithPassword(opts.Password)),
			},
			HostKeyCallback: hostKeyCallback,
			Timeout:         opts.Timeout,
		}

		addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
		sshConn, err := dialSSH(ctx, addr, config)
		if err != nil {
			return nil, fmt.Errorf("SSH 连接失败 (%s): %w", addr, err)
		}

		client, err := sftp.NewClient(sshConn)
		if err != nil {
			sshConn.Close()
			return nil, fmt.Errorf("SFTP 连接失败: %w", err)
		}

		return newSFTPSession(client, sshConn), nil
	}
}

func newSFTPSession(client *sftp.Client, conn io.Closer) *sftpSession {
	return &sftpSession{client: client, conn: conn}
}

// dialSSH 与 ssh.Dial 相同，但 TCP 拨号受 ctx 控制，
// 且连接空闲超过 config.Timeout（握手、MKDIR、写文件期间均适用）即视为断开
func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := &net.Dialer{Timeout: config.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	conn := withIdleTimeout(netConn, config.Timeout)
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(c, chans, reqs), nil
}

// answerWithPassword 对所有 keyboard-interactive 问题回答同一个密码（虚拟主机常见）
func answerWithPassword(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}

func newHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("读取 known_hosts 失败 (%s): %w", knownHostsPath, err)
	}
	return callback, nil
}

// MakeDir 创建单级远程目录；目录已存在时返回包装了 ErrDirExists 的错误
func (s *sftpSession) MakeDir(path string) error {
	err := s.client.Mkdir(path)
	if err == nil {
		return nil
	}

	// SFTP 服务端对"已存在"的返回码不统一（SSH_FX_FAILURE / FILE_ALREADY_EXISTS），以 Stat 为准
	fi, statErr := s.client.Stat(path)
	if statErr != nil {
		return fmt.Errorf("创建远程目录 %s 失败: %w", path, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return fmt.Errorf("%w: %s", ErrDirExists, path)
}

// Store 以二进制方式写入远程文件（覆盖已有内容）
func (s *sftpSession) Store(path string, r io.Reader) error {
	f, err := s.client.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("创建远程文件 %s 失败: %w", path, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("写入远程文件 %s 失败: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("关闭远程文件 %s 失败: %w", path, err)
	}
	return nil
}

func (s *sftpSession) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
