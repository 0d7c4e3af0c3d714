package tracker

import (
	"context"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/flow"
	"github.com/tendermint/tendermint/libs/log"
)

// Watcher is the part of a chain client the tracker needs.
type Watcher interface {
	WatchMultisig(ctx context.Context, id msigproxy.AccountID, callHash msigproxy.Hash, results chan<- client.MultisigUpdate, options ...client.Option) error
}

// Status is the tracked state of a multisig operation.
type Status struct {
	// Record is nil while no operation is pending.
	Record *client.MultisigRecord
	// Loaded is false until the chain answered for the first time.
	Loaded bool
	// Err is set when the watch failed. The status is not updated
	// anymore.
	Err error
}

// Approvals returns the number of approvals collected so far.
func (s Status) Approvals() int {
	if s.Record == nil {
		return 0
	}
	return len(s.Record.Approvals)
}

// Options configures Track.
type Options struct {
	Logger  log.Logger
	Metrics *Metrics
}

// Track returns a cell holding the live state of the operation identified
// by the group account and the call hash. The chain is watched only while
// the cell is observed. Every update replaces the previous record.
func Track(loop *flow.Loop, w Watcher, id msigproxy.AccountID, callHash msigproxy.Hash, opts Options) *flow.Derived[Status] {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With("multisig", id.String(), "call", callHash.String())

	return flow.Watch(loop, Status{}, func(ctx context.Context, emit func(Status)) {
		results := make(chan client.MultisigUpdate, 4)
		if err := w.WatchMultisig(ctx, id, callHash, results); err != nil {
			if ctx.Err() == nil {
				logger.Error("cannot watch multisig", "err", err)
				opts.Metrics.observe(Status{Err: err})
				emit(Status{Loaded: true, Err: err})
			}
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-results:
				if !ok || ctx.Err() != nil {
					return
				}
				st := Status{Record: u.Record, Loaded: true, Err: u.Err}
				if u.Err != nil {
					logger.Error("multisig watch failed", "err", u.Err)
				} else {
					logger.Debug("multisig updated", "approvals", st.Approvals())
				}
				opts.Metrics.observe(st)
				emit(st)
			}
		}
	})
}

// Fetch returns the current record of an operation, or nil if no operation
// is pending.
func Fetch(ctx context.Context, w Watcher, id msigproxy.AccountID, callHash msigproxy.Hash) (*client.MultisigRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan client.MultisigUpdate, 1)
	if err := w.WatchMultisig(ctx, id, callHash, results); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrTimeout, ctx.Err().Error())
	case u, ok := <-results:
		if !ok {
			return nil, errors.Wrap(errors.ErrConnectionLost, "watch closed")
		}
		return u.Record, u.Err
	}
}
