package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// ReconnectOptions 配置 Reconnect 的重试参数
type ReconnectOptions struct {
	Attempts int
	Backoff  time.Duration
	Clock    clockwork.Clock
}

func (o *ReconnectOptions) withDefaults() {
	if o.Attempts <= 0 {
		o.Attempts = DefaultReconnectTries
	}
	if o.Backoff == 0 {
		o.Backoff = DefaultBackoff
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// Reconnect 在固定退避后重新拨号，最多尝试 Attempts 次。
// 每次拨号前都先等待 Backoff，给服务端释放旧连接的时间。
func Reconnect(ctx context.Context, dial DialFunc, opts ReconnectOptions) (Session, error) {
	opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-opts.Clock.After(opts.Backoff):
		}

		session, err := dial(ctx)
		if err == nil {
			log.WithField("attempt", attempt).Debug("Reconnected")
			return session, nil
		}
		lastErr = err

		log.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"max":     opts.Attempts,
		}).Warn("Reconnect attempt failed")
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrReconnectFailed, opts.Attempts, lastErr)
}
