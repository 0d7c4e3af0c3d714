package msigtest

import (
	"context"
	"testing"

	"github.com/iov-one/msigproxy/flow"
)

// RunLoop starts a loop in the background. Call the returned function to
// stop it.
func RunLoop(t testing.TB) (*flow.Loop, func()) {
	t.Helper()
	loop := flow.NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = loop.Run(ctx)
	}()
	return loop, func() {
		cancel()
		<-stopped
	}
}

// Read returns the current value of a cell, read on the loop.
func Read[T any](t testing.TB, loop *flow.Loop, c flow.Cell[T]) T {
	t.Helper()
	var v T
	if err := loop.Do(context.Background(), func() { v = c.Get() }); err != nil {
		t.Fatalf("cannot read cell: %+v", err)
	}
	return v
}

// Observe subscribes to a cell on the loop, so that it stays active. Call
// the returned function to unsubscribe.
func Observe[T any](t testing.TB, loop *flow.Loop, c flow.Cell[T]) func() {
	t.Helper()
	var unsubscribe func()
	if err := loop.Do(context.Background(), func() {
		unsubscribe = c.Subscribe(func(T) {})
	}); err != nil {
		t.Fatalf("cannot subscribe: %+v", err)
	}
	return func() {
		_ = loop.Do(context.Background(), unsubscribe)
	}
}
