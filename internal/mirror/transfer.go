package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hwuu/sitepush/internal/remote"
)

// Outcome 单个操作的结果分类，调用方据此决定继续还是中止
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeRetryable 远程传输失败且重试次数已用尽；记为单文件失败，运行继续
	OutcomeRetryable
	// OutcomeFatal 本地文件不可读（单文件失败，不重连），或重连失败（中止运行）
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retries exhausted"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// FileResult 单个文件的上传结果
type FileResult struct {
	LocalPath  string
	RemotePath string
	Outcome    Outcome
	Attempts   int
	Bytes      int64
	Err        error
}

// ReconnectFunc 丢弃旧会话后建立新会话
type ReconnectFunc func(ctx context.Context) (remote.Session, error)

// Transferrer 负责单个文件的上传与失败重试
type Transferrer struct {
	Fs         afero.Fs
	Output     io.Writer
	MaxRetries int
	Reconnect  ReconnectFunc
}

// localReadError 标记本地文件读取失败，重连无法修复
type localReadError struct {
	err error
}

func (e *localReadError) Error() string { return e.err.Error() }
func (e *localReadError) Unwrap() error { return e.err }

// Transfer 上传 localPath 到 remotePath，最多尝试 MaxRetries 次。
// 每次远程失败后都关闭当前会话并重连（包括最后一次），保证返回的会话可供下一个文件使用。
// 重试总是从文件开头重新发送。重连失败时返回的会话为 nil。
func (t *Transferrer) Transfer(ctx context.Context, session remote.Session, localPath, remotePath string) (FileResult, remote.Session) {
	res := FileResult{LocalPath: localPath, RemotePath: remotePath}

	maxRetries := t.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		res.Attempts = attempt
		fmt.Fprintf(t.Output, "  上传 %s (第 %d 次尝试)...\n", remotePath, attempt)

		n, err := t.storeOnce(session, localPath, remotePath)
		if err == nil {
			res.Outcome = OutcomeOK
			res.Bytes = n
			res.Err = nil
			return res, session
		}
		res.Err = err

		var localErr *localReadError
		if errors.As(err, &localErr) {
			res.Outcome = OutcomeFatal
			return res, session
		}

		log.WithError(err).WithFields(log.Fields{
			"remote":  remotePath,
			"attempt": attempt,
			"max":     maxRetries,
		}).Warn("Upload failed, reconnecting")
		fmt.Fprintf(t.Output, "  ✗ 上传 %s 失败: %v\n", remotePath, err)

		_ = session.Close()
		next, rerr := t.Reconnect(ctx)
		if rerr != nil {
			res.Outcome = OutcomeFatal
			res.Err = rerr
			return res, nil
		}
		session = next
	}

	res.Outcome = OutcomeRetryable
	return res, session
}

func (t *Transferrer) storeOnce(session remote.Session, localPath, remotePath string) (int64, error) {
	f, err := t.Fs.Open(localPath)
	if err != nil {
		return 0, &localReadError{err: fmt.Errorf("open local file %s: %w", localPath, err)}
	}
	defer f.Close()

	r := &countingReader{r: f}
	if err := session.Store(remotePath, r); err != nil {
		if r.err != nil {
			return r.n, &localReadError{err: fmt.Errorf("read local file %s: %w", localPath, r.err)}
		}
		return r.n, err
	}
	return r.n, nil
}

// countingReader 统计已读字节数，并记录本地读取错误以区分本地 / 远程失败
type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}
