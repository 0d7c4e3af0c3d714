package flow

import (
	"context"

	"github.com/iov-one/msigproxy/errors"
)

// Watch returns a cell fed by an external producer. Every time the cell
// becomes observed, start is called in a new goroutine with a context that
// is cancelled when the cell is released. Values passed to emit are posted
// to the loop. Values that arrive after the cell was released, or after it
// was released and observed again, are discarded. The cell holds def while
// nothing was emitted since the last activation.
func Watch[T any](loop *Loop, def T, start func(ctx context.Context, emit func(T))) *Derived[T] {
	return watch(loop, def, start, nil)
}

func watch[T any](loop *Loop, def T, start func(ctx context.Context, emit func(T)), discard func(T)) *Derived[T] {
	d := &Derived[T]{}
	d.value = def
	var (
		gen    int
		cancel context.CancelFunc
		fresh  bool
	)
	d.activate = func() {
		gen++
		current := gen
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		d.emit(def)
		fresh = false

		emit := func(v T) {
			posted := loop.Post(func() {
				if current != gen || !d.active {
					if discard != nil {
						discard(v)
					}
					return
				}
				fresh = true
				d.emit(v)
			})
			if !posted && discard != nil {
				discard(v)
			}
		}
		go func() {
			var err error
			defer func() {
				if err != nil {
					loop.logger.Error("watch producer failed", "err", err)
				}
			}()
			defer errors.Recover(&err)
			start(ctx, emit)
		}()
	}
	d.deactivate = func() {
		gen++
		cancel()
		if fresh && discard != nil {
			discard(d.value)
		}
		fresh = false
	}
	return d
}

// Result is the state of an asynchronous computation.
type Result[T any] struct {
	Value   T
	Err     error
	Pending bool
}

// Ready returns true if the computation finished successfully.
func (r Result[T]) Ready() bool {
	return !r.Pending && r.Err == nil
}

// Async returns a cell holding the result of fn. fn is called in its own
// goroutine every time the cell becomes observed and its context is
// cancelled when the cell is released. The cell is Pending until fn returns.
// A panic in fn is reported as an error result.
func Async[T any](loop *Loop, fn func(ctx context.Context) (T, error)) *Derived[Result[T]] {
	return AsyncCleanup(loop, fn, nil)
}

// AsyncCleanup is Async for values that hold resources. cleanup is called
// with every successful value that is no longer used: either because the
// result arrived too late, or because the cell holding it was released.
func AsyncCleanup[T any](loop *Loop, fn func(ctx context.Context) (T, error), cleanup func(T)) *Derived[Result[T]] {
	var discard func(Result[T])
	if cleanup != nil {
		discard = func(r Result[T]) {
			if r.Ready() {
				cleanup(r.Value)
			}
		}
	}
	return watch(loop, Result[T]{Pending: true}, func(ctx context.Context, emit func(Result[T])) {
		v, err := call(ctx, fn)
		emit(Result[T]{Value: v, Err: err})
	}, discard)
}

func call[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (v T, err error) {
	defer errors.Recover(&err)
	return fn(ctx)
}

// AsyncMap runs fn for every value of src. A computation that is superseded
// by a newer value of src is cancelled and its result discarded.
func AsyncMap[A, T any](loop *Loop, src Cell[A], fn func(ctx context.Context, a A) (T, error)) *Derived[Result[T]] {
	return Switch(src, func(a A) Cell[Result[T]] {
		return Async(loop, func(ctx context.Context) (T, error) {
			return fn(ctx, a)
		})
	})
}

// Produce returns a stream of the values passed to emit by start. start is
// called in a new goroutine when the stream is first subscribed and the
// stream completes once it returns. Releasing the stream cancels the
// context given to start and values emitted after that are discarded. A
// panic in start completes the stream.
func Produce[T any](loop *Loop, start func(ctx context.Context, emit func(T))) Stream[T] {
	s := &streamNode[T]{}
	var (
		gen    int
		cancel context.CancelFunc
	)
	s.activate = func() {
		gen++
		current := gen
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		emit := func(v T) {
			loop.Post(func() {
				if current == gen && s.active {
					s.emit(v)
				}
			})
		}
		go func() {
			var err error
			defer func() {
				if err != nil {
					loop.logger.Error("stream producer failed", "err", err)
				}
				loop.Post(func() {
					if current == gen {
						s.complete()
					}
				})
			}()
			defer errors.Recover(&err)
			start(ctx, emit)
		}()
	}
	s.deactivate = func() {
		gen++
		cancel()
	}
	return s
}
