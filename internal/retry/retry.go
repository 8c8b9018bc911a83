// internal/retry/retry.go
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Policy bounds a retried operation. The zero value means a single attempt
// with no delay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy is three attempts starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Delay is the sleep after the failed attempt with the given zero-based
// index: BaseDelay * 2^attempt, saturating at the maximum duration.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 || p.BaseDelay <= 0 {
		return 0
	}
	if attempt >= 63 || p.BaseDelay > time.Duration(math.MaxInt64>>uint(attempt)) {
		return time.Duration(math.MaxInt64)
	}
	return p.BaseDelay << uint(attempt)
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Attempt describes one failed, non-final attempt.
type Attempt struct {
	Operation string
	// Index is zero-based.
	Index int
	Err   error
	// Delay is the sleep that follows the hooks.
	Delay time.Duration
}

// Hook observes a failed attempt before the backoff sleep. Hooks must not
// block for long; they run on the retrying goroutine.
type Hook func(ctx context.Context, a Attempt)

// Timer is the sleep source. backoff.Timer is satisfied by the real and
// fake timers alike.
type Timer = backoff.Timer

type settings struct {
	name   string
	hooks  []Hook
	timer  Timer
	logger *zap.Logger
}

// Option configures a single Run or Do call.
type Option func(*settings)

// WithHook adds a hook invoked after every failure except the last.
func WithHook(h Hook) Option {
	return func(s *settings) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

// WithTimer replaces the wall-clock timer.
func WithTimer(t Timer) Option {
	return func(s *settings) { s.timer = t }
}

// WithLogger logs each retry at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithName labels the operation in logs and hook attempts.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// Permanent marks err as not worth retrying. Run returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Run executes op up to p.MaxAttempts times. After each failure except the
// last it calls the hooks and then sleeps p.Delay(index). When attempts run
// out the last error is returned unchanged. Cancelling ctx stops the loop
// and returns ctx.Err().
func Run[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	s := settings{name: "operation", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	p = p.normalize()

	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.BaseDelay),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(time.Duration(math.MaxInt64)),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() (T, error) {
		attempt++
		return op(ctx)
	}
	notify := func(err error, next time.Duration) {
		a := Attempt{Operation: s.name, Index: attempt - 1, Err: err, Delay: next}
		s.logger.Debug("Attempt failed, retrying",
			zap.String("operation", a.Operation),
			zap.Int("attempt", a.Index+1),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", next),
			zap.Error(err))
		for _, h := range s.hooks {
			h(ctx, a)
		}
	}

	return backoff.RetryNotifyWithTimerAndData[T](operation, b, notify, s.timer)
}

// Do is Run for operations without a result.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}
