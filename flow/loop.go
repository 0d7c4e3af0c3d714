package flow

import (
	"context"
	"sync"

	"github.com/iov-one/msigproxy/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// Loop serializes access to cells. Functions posted to a loop are executed
// one at a time, in the order they were posted, on the goroutine that called
// Run.
type Loop struct {
	logger log.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
}

// NewLoop returns a loop that is not running yet. Functions can be posted
// before Run is called.
func NewLoop(logger log.Logger) *Loop {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Post schedules fn for execution on the loop. It never blocks. It returns
// false if the loop was stopped and fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do executes fn on the loop and waits for it to return. Do must not be
// called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return errors.Wrap(errors.ErrState, "loop stopped")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrTimeout, ctx.Err().Error())
	}
}

// Run executes posted functions until the context is cancelled. A loop can
// be run only once.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()
	for {
		l.drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		queue := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(queue) == 0 {
			return
		}
		for _, fn := range queue {
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	var err error
	defer func() {
		if err != nil {
			l.logger.Error("loop task failed", "err", err)
		}
	}()
	defer errors.Recover(&err)
	fn()
}
