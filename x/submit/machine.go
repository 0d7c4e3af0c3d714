package submit

import (
	"context"

	"github.com/google/uuid"
	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/flow"
	"github.com/tendermint/tendermint/libs/log"
)

// Submitter sends signed transactions to a chain.
type Submitter interface {
	SubmitAndWatch(ctx context.Context, extrinsic []byte, events chan<- client.SubmissionEvent) error
}

// Request is what an attempt needs. Signer must produce a transaction
// dispatching Call from the account the call is meant for.
type Request struct {
	Signer    client.Signer
	Call      []byte
	Submitter Submitter
}

// Ready returns true if an attempt can be started.
func (r Request) Ready() bool {
	return r.Signer != nil && len(r.Call) > 0 && r.Submitter != nil
}

// Options configures a Machine.
type Options struct {
	Logger  log.Logger
	Metrics *Metrics
}

// Machine submits the current request every time it is triggered. It must
// be used from the loop goroutine only, except for Submit.
type Machine struct {
	loop     *flow.Loop
	request  flow.Cell[Request]
	trigger  *flow.Signal[struct{}]
	attempts flow.Stream[State]
	state    *flow.State[State]
	logger   log.Logger
	metrics  *Metrics

	release func()
}

// NewMachine returns a machine submitting the value of request. The machine
// does not react to triggers until it is started.
func NewMachine(loop *flow.Loop, request flow.Cell[Request], opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	m := &Machine{
		loop:    loop,
		request: request,
		trigger: flow.NewSignal[struct{}](),
		logger:  logger.With("module", "submit"),
		metrics: opts.Metrics,
		state:   flow.NewState(State{Kind: Idle}),
	}
	m.attempts = flow.Exhaust[struct{}, State](m.trigger, m.attempt, func(struct{}) {
		m.logger.Debug("submit request dropped, attempt in progress")
		m.metrics.dropped()
	})
	return m
}

// State returns the cell holding the progress of the latest attempt.
func (m *Machine) State() flow.Cell[State] {
	return m.state
}

// Start makes the machine accept triggers. The request cell is observed
// while the machine is started.
func (m *Machine) Start() {
	if m.release != nil {
		return
	}
	stopAttempts := m.attempts.Subscribe(m.state.Set, nil)
	stopRequest := m.request.Subscribe(func(Request) {})
	m.release = func() {
		stopAttempts()
		stopRequest()
	}
}

// Stop cancels the attempt in progress and releases the request cell. A
// cancelled attempt leaves the machine Idle.
func (m *Machine) Stop() {
	if m.release == nil {
		return
	}
	m.release()
	m.release = nil
	if m.state.Get().Busy() {
		m.logger.Debug("submission cancelled", "attempt", m.state.Get().Attempt)
		m.state.Set(State{Kind: Idle})
	}
}

// Trigger requests a submission of the current request. Without a signer
// or a call it has no effect.
func (m *Machine) Trigger() {
	m.trigger.Emit(struct{}{})
}

// Submit is Trigger for use outside of the loop goroutine.
func (m *Machine) Submit() {
	m.loop.Post(m.Trigger)
}

func (m *Machine) attempt(struct{}) flow.Stream[State] {
	req := m.request.Get()
	if !req.Ready() {
		m.logger.Debug("submit request ignored, nothing to submit")
		return nil
	}
	id := uuid.New().String()
	logger := m.logger.With("attempt", id, "signer", req.Signer.Address())

	attempt := flow.Produce(m.loop, func(ctx context.Context, emit func(State)) {
		ctx = msigproxy.WithLogger(ctx, logger)
		final, err := drive(ctx, State{Attempt: id}, req, func(s State) {
			logger.Debug("submission progress", "state", s.Kind)
			emit(s)
		})
		if err != nil {
			if ctx.Err() != nil {
				// Stopped, nobody listens.
				return
			}
			final.Attempt = id
			final.Err = err
			if errors.ErrInvalidTx.Is(err) {
				final.Kind = Invalid
				logger.Info("transaction rejected", "err", err)
			} else {
				final.Kind = Error
				logger.Error("submission failed", "err", err)
			}
		} else if final.OK {
			logger.Info("submission finalized", "block", final.Block)
		} else {
			logger.Info("submission finalized, dispatch failed", "block", final.Block, "err", final.Err)
		}
		m.metrics.finished(final)
		emit(final)
	})
	// The attempt ends with its terminal state, in the same loop task
	// that publishes it.
	return flow.Until(attempt, State.Terminal)
}

// drive runs an attempt until a final event. It returns the finalized
// state, without publishing it, no matter whether the call dispatched. On
// failure the last published state is returned with the error.
func drive(ctx context.Context, st State, req Request, progress func(State)) (_ State, err error) {
	defer errors.Recover(&err)

	st.Kind = Signing
	progress(st)
	tx, err := req.Signer.SignTx(ctx, req.Call)
	if err != nil {
		return st, errors.Wrap(err, "sign")
	}

	st.Kind = Validating
	progress(st)
	events := make(chan client.SubmissionEvent, 4)
	if err := req.Submitter.SubmitAndWatch(ctx, tx, events); err != nil {
		return st, err
	}
	for {
		select {
		case <-ctx.Done():
			return st, errors.Wrap(errors.ErrTimeout, ctx.Err().Error())
		case ev, ok := <-events:
			if !ok {
				return st, errors.Wrap(errors.ErrConnectionLost, "watch ended before finalization")
			}
			switch ev.Kind {
			case client.EventBroadcast:
				st.Kind = Broadcast
			case client.EventInBlock, client.EventFinalized:
				st.Kind = InBlock
				if ev.Kind == client.EventFinalized {
					st.Kind = Finalized
				}
				st.Block = ev.Block
				st.OK = ev.OK
				st.Err = nil
				if !ev.OK {
					st.Err = errors.Wrap(errors.ErrDispatch, ev.Reason)
				}
			case client.EventInvalid:
				return st, errors.Wrap(errors.ErrInvalidTx, ev.Reason)
			default:
				return st, errors.Wrapf(errors.ErrSubmission, "unknown event %s", ev.Kind)
			}
			if st.Kind == Finalized {
				return st, nil
			}
			progress(st)
		}
	}
}
