package extension

import (
	"context"
	"time"

	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/flow"
	"github.com/tendermint/tendermint/libs/log"
)

const (
	// DefaultFastPoll is how often wallets are listed until one shows up.
	DefaultFastPoll = 100 * time.Millisecond
	// DefaultSlowPoll is how often wallets are listed afterwards.
	DefaultSlowPoll = 2 * time.Second
	// DefaultRetryDelay is the wait before connecting again after a
	// wallet reported a pending authorization.
	DefaultRetryDelay = time.Second
)

// Options tune how wallets are discovered and connected. Zero values use
// the defaults.
type Options struct {
	FastPoll   time.Duration
	SlowPoll   time.Duration
	RetryDelay time.Duration
	Logger     log.Logger
}

func (o Options) withDefaults() Options {
	if o.FastPoll <= 0 {
		o.FastPoll = DefaultFastPoll
	}
	if o.SlowPoll <= 0 {
		o.SlowPoll = DefaultSlowPoll
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	return o
}

// Connect opens a connection to the wallet called name. While the wallet
// rejects the request because of a pending authorization, the request is
// repeated. Any other failure is returned.
func Connect(ctx context.Context, p Provider, name string, opts Options) (Handle, error) {
	opts = opts.withDefaults()
	for {
		h, err := p.Connect(ctx, name)
		if err == nil {
			return h, nil
		}
		if !IsPendingAuthorization(err) {
			return nil, err
		}
		opts.Logger.Debug("wallet authorization pending", "wallet", name)

		t := time.NewTimer(opts.RetryDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Wrap(errors.ErrTimeout, ctx.Err().Error())
		}
	}
}

// Available returns a cell listing the wallets that can be connected. The
// provider is polled quickly until at least one wallet shows up and slowly
// after that.
func Available(loop *flow.Loop, p Provider, opts Options) *flow.Derived[[]string] {
	opts = opts.withDefaults()
	return flow.Watch(loop, nil, func(ctx context.Context, emit func([]string)) {
		var last []string
		interval := opts.FastPoll
		for {
			names := p.ListAvailable()
			if !sameNames(last, names) {
				emit(names)
				last = names
			}
			if len(names) > 0 {
				interval = opts.SlowPoll
			}
			t := time.NewTimer(interval)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
	})
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Status tells how far a wallet connection got.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// State is the connection of a single wallet. Handle is set when
// Connected. Err is set when the connection was refused.
type State struct {
	Status Status
	Handle Handle
	Err    error
}

// Connection returns a cell holding the connection to the wallet called
// name. Once observed, it waits for the wallet to become available and
// connects. The connection is closed when the cell is released, including
// a connection that completes after the release.
func Connection(loop *flow.Loop, p Provider, name string, opts Options) *flow.Derived[State] {
	opts = opts.withDefaults()
	return flow.Watch(loop, State{Status: Connecting}, func(ctx context.Context, emit func(State)) {
		if !waitAvailable(ctx, p, name, opts) {
			return
		}
		h, err := Connect(ctx, p, name, opts)
		if err != nil {
			if ctx.Err() == nil {
				opts.Logger.Error("cannot connect to wallet", "wallet", name, "err", err)
				emit(State{Status: Disconnected, Err: err})
			}
			return
		}
		defer func() {
			if err := h.Disconnect(); err != nil {
				opts.Logger.Error("cannot disconnect from wallet", "wallet", name, "err", err)
			}
		}()
		if ctx.Err() != nil {
			opts.Logger.Debug("disconnect just after connecting", "wallet", name)
			return
		}
		emit(State{Status: Connected, Handle: h})
		<-ctx.Done()
	})
}

func waitAvailable(ctx context.Context, p Provider, name string, opts Options) bool {
	interval := opts.FastPoll
	for {
		for _, n := range p.ListAvailable() {
			if n == name {
				return true
			}
		}
		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false
		}
		interval = opts.SlowPoll
	}
}

// Accounts returns a cell holding the accounts shared over a connection.
// It is empty unless the connection is established.
func Accounts(loop *flow.Loop, conn flow.Cell[State]) *flow.Derived[[]Account] {
	return flow.Switch(conn, func(s State) flow.Cell[[]Account] {
		if s.Status != Connected || s.Handle == nil {
			return flow.Const[[]Account](nil)
		}
		h := s.Handle
		return flow.Watch(loop, h.Accounts(), func(ctx context.Context, emit func([]Account)) {
			unsubscribe := h.Subscribe(emit)
			defer unsubscribe()
			// Accounts may have changed between creating the cell and
			// subscribing.
			emit(h.Accounts())
			<-ctx.Done()
		})
	})
}
