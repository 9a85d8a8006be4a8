// Package mirror 将本地目录树完整镜像到远程目录：先序遍历本地树，
// 逐级确保远程目录存在，逐个上传文件，传输失败时重连并重试。
// 每次运行都全量上传，不做增量比较。
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hwuu/sitepush/internal/remote"
)

var (
	ErrConnect   = errors.New("connect to remote host failed")
	ErrLocalRoot = errors.New("local root is not a readable directory")
)

// State 镜像驱动的状态
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateWalking
	StateReconnecting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateWalking:
		return "WALKING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options 一次镜像运行的参数，由调用方显式传入
type Options struct {
	LocalRoot         string
	RemoteRoot        string
	MaxRetries        int
	Backoff           time.Duration
	ReconnectAttempts int
	ConnectTimeout    time.Duration
	Exclude           []string
}

func (o *Options) withDefaults() {
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	if o.Backoff == 0 {
		o.Backoff = remote.DefaultBackoff
	}
	if o.ReconnectAttempts < 1 {
		o.ReconnectAttempts = remote.DefaultReconnectTries
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = remote.DefaultConnectTimeout
	}
}

// DirResult 单个远程目录的确保结果
type DirResult struct {
	RemotePath string
	Err        error
}

// Report 一次运行的完整记录
type Report struct {
	States     []State
	Dirs       []DirResult
	Files      []FileResult
	Reconnects int
	Err        error // 导致 FAILED 的错误
}

// Final 返回最终状态
func (r *Report) Final() State {
	if len(r.States) == 0 {
		return StateConnecting
	}
	return r.States[len(r.States)-1]
}

// Uploaded 成功上传的文件数
func (r *Report) Uploaded() int {
	n := 0
	for _, f := range r.Files {
		if f.Outcome == OutcomeOK {
			n++
		}
	}
	return n
}

// Bytes 成功上传的总字节数
func (r *Report) Bytes() int64 {
	var n int64
	for _, f := range r.Files {
		if f.Outcome == OutcomeOK {
			n += f.Bytes
		}
	}
	return n
}

// FailedFiles 上传失败的远程路径
func (r *Report) FailedFiles() []string {
	var failed []string
	for _, f := range r.Files {
		if f.Outcome != OutcomeOK {
			failed = append(failed, f.RemotePath)
		}
	}
	return failed
}

// FailedDirs 创建失败的远程目录
func (r *Report) FailedDirs() []string {
	var failed []string
	for _, d := range r.Dirs {
		if d.Err != nil {
			failed = append(failed, d.RemotePath)
		}
	}
	return failed
}

// Mirror 镜像驱动，通过依赖注入支持测试
type Mirror struct {
	Fs      afero.Fs
	Dial    remote.DialFunc
	Output  io.Writer
	Clock   clockwork.Clock
	Options Options
}

// New 创建使用本地文件系统和真实时钟的 Mirror
func New(opts Options, dial remote.DialFunc, out io.Writer) *Mirror {
	return &Mirror{
		Fs:      afero.NewOsFs(),
		Dial:    dial,
		Output:  out,
		Clock:   clockwork.NewRealClock(),
		Options: opts,
	}
}

func (m *Mirror) printf(format string, args ...interface{}) {
	fmt.Fprintf(m.Output, format, args...)
}

func (m *Mirror) transition(r *Report, s State) {
	log.WithField("state", s.String()).Debug("Mirror state")
	r.States = append(r.States, s)
}

func (m *Mirror) fail(r *Report, err error) (*Report, error) {
	m.transition(r, StateFailed)
	r.Err = err
	return r, err
}

// Run 执行一次完整镜像。返回的 error 仅表示运行被中止（FAILED）；
// 单个文件或目录的失败记录在 Report 中，运行照常继续。
func (m *Mirror) Run(ctx context.Context) (*Report, error) {
	opts := m.Options
	opts.withDefaults()
	r := &Report{}

	filter, err := NewFilter(opts.Exclude)
	if err != nil {
		return m.fail(r, err)
	}
	if fi, err := m.Fs.Stat(opts.LocalRoot); err != nil || !fi.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return m.fail(r, fmt.Errorf("%w: %s: %v", ErrLocalRoot, opts.LocalRoot, err))
	}

	m.transition(r, StateConnecting)
	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	session, err := m.Dial(connectCtx)
	cancel()
	if err != nil {
		m.printf("✗ 连接失败: %v\n", err)
		return m.fail(r, fmt.Errorf("%w: %v", ErrConnect, err))
	}
	m.transition(r, StateConnected)
	m.printf("✓ 已连接\n")

	reconnect := func(ctx context.Context) (remote.Session, error) {
		m.transition(r, StateReconnecting)
		r.Reconnects++
		m.printf("  重新连接中...\n")
		next, err := remote.Reconnect(ctx, m.Dial, remote.ReconnectOptions{
			Attempts: opts.ReconnectAttempts,
			Backoff:  opts.Backoff,
			Clock:    m.Clock,
		})
		if err != nil {
			return nil, err
		}
		m.transition(r, StateWalking)
		return next, nil
	}

	ensurer := NewEnsurer()
	transferrer := &Transferrer{
		Fs:         m.Fs,
		Output:     m.Output,
		MaxRetries: opts.MaxRetries,
		Reconnect:  reconnect,
	}

	m.transition(r, StateWalking)
	walkErr := Walk(m.Fs, opts.LocalRoot, filter, func(e Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		remotePath := RemotePath(opts.RemoteRoot, e.RelPath)

		if e.IsDir {
			if remotePath == "" {
				return nil
			}
			err := ensurer.Ensure(session, remotePath)
			r.Dirs = append(r.Dirs, DirResult{RemotePath: remotePath, Err: err})
			if err != nil {
				log.WithError(err).WithField("dir", remotePath).Warn("Failed to create remote directory")
				m.printf("  ✗ 创建目录 %s 失败: %v\n", remotePath, err)
			}
			return nil
		}

		res, next := transferrer.Transfer(ctx, session, e.Path, remotePath)
		r.Files = append(r.Files, res)
		if next == nil {
			session = nil
			if interrupted(res.Err) {
				m.printf("✗ 已中断\n")
			} else {
				m.printf("✗ 连接丢失且无法重连\n")
			}
			return res.Err
		}
		session = next

		switch res.Outcome {
		case OutcomeOK:
			m.printf("  ✓ %s (%d bytes)\n", remotePath, res.Bytes)
		default:
			log.WithError(res.Err).WithFields(log.Fields{
				"remote":   remotePath,
				"attempts": res.Attempts,
				"outcome":  res.Outcome.String(),
			}).Error("File upload failed")
			m.printf("  ✗ 上传 %s 失败 (%d 次尝试): %v\n", remotePath, res.Attempts, res.Err)
		}
		return nil
	})

	if walkErr != nil {
		if session != nil {
			_ = session.Close()
		}
		return m.fail(r, walkErr)
	}

	_ = session.Close()
	m.transition(r, StateDone)
	return r, nil
}

// interrupted 判断错误是否来自 ctx 取消（SIGINT）或超时，而非远程故障
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
