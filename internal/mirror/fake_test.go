package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hwuu/sitepush/internal/remote"
)

var errConnReset = errors.New("connection reset by peer")

// fakeRemote 内存中的远程主机：记录操作顺序，可注入拨号 / 建目录 / 上传失败
type fakeRemote struct {
	mu sync.Mutex

	dirs  map[string]bool
	files map[string][]byte
	ops   []string

	stores     map[string]int
	failStores map[string]int // 剩余失败次数
	denyMkdir  map[string]bool
	dialErrs   []error // 按顺序消费，耗尽后拨号成功
	failDials  bool    // 首次拨号之后全部失败
	dials      int

	onStoreFail func() // 注入的上传失败发生时调用
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		dirs:       map[string]bool{},
		files:      map[string][]byte{},
		stores:     map[string]int{},
		failStores: map[string]int{},
		denyMkdir:  map[string]bool{},
	}
}

func (f *fakeRemote) dial(ctx context.Context) (remote.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dials++
	if len(f.dialErrs) > 0 {
		err := f.dialErrs[0]
		f.dialErrs = f.dialErrs[1:]
		return nil, err
	}
	if f.failDials && f.dials > 1 {
		return nil, errors.New("no route to host")
	}
	return &fakeSession{remote: f}, nil
}

func (f *fakeRemote) opsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

type fakeSession struct {
	remote *fakeRemote
	closed bool
}

func (s *fakeSession) parentExists(p string) bool {
	dir := path.Dir(p)
	return dir == "." || dir == "/" || s.remote.dirs[dir]
}

func (s *fakeSession) MakeDir(p string) error {
	f := s.remote
	f.mu.Lock()
	defer f.mu.Unlock()

	if s.closed {
		return errors.New("use of closed session")
	}
	if f.denyMkdir[p] {
		return errors.New("550 permission denied")
	}
	if f.dirs[p] {
		return fmt.Errorf("%w: %s", remote.ErrDirExists, p)
	}
	if !s.parentExists(p) {
		return fmt.Errorf("550 %s: no such file or directory", path.Dir(p))
	}
	f.dirs[p] = true
	f.ops = append(f.ops, "mkdir "+p)
	return nil
}

func (s *fakeSession) Store(p string, r io.Reader) error {
	f := s.remote
	f.mu.Lock()
	defer f.mu.Unlock()

	if s.closed {
		return errors.New("use of closed session")
	}
	if !s.parentExists(p) {
		return fmt.Errorf("553 %s: no such directory", path.Dir(p))
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}

	if f.failStores[p] > 0 {
		f.failStores[p]--
		// 断线前只写入了一部分
		f.files[p] = buf.Bytes()[:buf.Len()/2]
		if f.onStoreFail != nil {
			f.onStoreFail()
		}
		return errConnReset
	}

	f.files[p] = buf.Bytes()
	f.stores[p]++
	f.ops = append(f.ops, "store "+p)
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// runWithFakeClock 在后台执行 fn，并持续推进假时钟以跳过退避等待
func runWithFakeClock(clock clockwork.FakeClock, fn func()) {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		case <-time.After(time.Millisecond):
			clock.Advance(time.Minute)
		}
	}
}
