package remote

import (
	"context"
	"fmt"
	"io"
)

// dryRunSession 只打印将要执行的操作，不建立任何连接
type dryRunSession struct {
	out     io.Writer
	created map[string]bool
}

// NewDryRunDialFunc 返回一个生成 dry-run 会话的 DialFunc
func NewDryRunDialFunc(out io.Writer) DialFunc {
	created := make(map[string]bool)
	return func(ctx context.Context) (Session, error) {
		return &dryRunSession{out: out, created: created}, nil
	}
}

func (s *dryRunSession) MakeDir(path string) error {
	if s.created[path] {
		return fmt.Errorf("%w: %s", ErrDirExists, path)
	}
	s.created[path] = true
	fmt.Fprintf(s.out, "  [dry-run] mkdir %s\n", path)
	return nil
}

func (s *dryRunSession) Store(path string, r io.Reader) error {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "  [dry-run] store %s (%d bytes)\n", path, n)
	return nil
}

func (s *dryRunSession) Close() error {
	return nil
}
