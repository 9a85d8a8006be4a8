package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"

	"github.com/jlaffaye/ftp"
)

// ftpConn 是 *ftp.ServerConn 中用到的子集，便于 mock
type ftpConn interface {
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	CurrentDir() (string, error)
	ChangeDir(path string) error
	Quit() error
}

type ftpSession struct {
	conn ftpConn
}

// NewFTPDialFunc 创建真实 FTP 连接的 DialFunc（被动模式，二进制传输）
func NewFTPDialFunc(opts DialOptions) DialFunc {
	opts.withDefaults()

	return func(ctx context.Context) (Session, error) {
		addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

		// 控制连接和数据连接都经过 dialFunc，空闲超过 Timeout 即报错，交给上层重连。
		// ctx 只约束控制连接：它在拨号结束后可能被取消，数据连接随后才建立。
		dialer := &net.Dialer{Timeout: opts.Timeout}
		dialCtx := ctx
		dialOpts := []ftp.DialOption{
			ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
				conn, err := dialer.DialContext(dialCtx, network, address)
				dialCtx = context.Background()
				if err != nil {
					return nil, err
				}
				return withIdleTimeout(conn, opts.Timeout), nil
			}),
			ftp.DialWithShutTimeout(opts.Timeout),
		}
		if opts.TLS {
			dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: opts.Host}))
		}

		conn, err := ftp.Dial(addr, dialOpts...)
		if err != nil {
			return nil, fmt.Errorf("FTP 连接失败 (%s): %w", addr, err)
		}

		if err := conn.Login(opts.Username, opts.Password); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("FTP 登录失败 (%s): %w", opts.Username, err)
		}

		return &ftpSession{conn: conn}, nil
	}
}

// MakeDir 创建单级远程目录。
// FTP 对"已存在"和"无权限"都回 550，因此 5xx 时用 CWD 探测目录是否真的存在。
func (s *ftpSession) MakeDir(path string) error {
	err := s.conn.MakeDir(path)
	if err == nil {
		return nil
	}
	if !isPermanentReply(err) {
		return fmt.Errorf("创建远程目录 %s 失败: %w", path, err)
	}

	exists, probeErr := s.dirExists(path)
	if probeErr != nil {
		return fmt.Errorf("创建远程目录 %s 失败: %w", path, probeErr)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDirExists, path)
	}
	return fmt.Errorf("创建远程目录 %s 失败: %w", path, err)
}

// dirExists 尝试 CWD 进入 path，成功后切回原工作目录
func (s *ftpSession) dirExists(path string) (bool, error) {
	cwd, err := s.conn.CurrentDir()
	if err != nil {
		return false, err
	}
	if err := s.conn.ChangeDir(path); err != nil {
		return false, nil
	}
	if err := s.conn.ChangeDir(cwd); err != nil {
		return true, fmt.Errorf("切回工作目录 %s 失败: %w", cwd, err)
	}
	return true, nil
}

func (s *ftpSession) Store(path string, r io.Reader) error {
	if err := s.conn.Stor(path, r); err != nil {
		return fmt.Errorf("上传远程文件 %s 失败: %w", path, err)
	}
	return nil
}

func (s *ftpSession) Close() error {
	return s.conn.Quit()
}

// isPermanentReply 判断是否为 FTP 5xx 永久性否定应答
func isPermanentReply(err error) bool {
	var reply *textproto.Error
	if !errors.As(err, &reply) {
		return false
	}
	return reply.Code >= 500 && reply.Code < 600
}
