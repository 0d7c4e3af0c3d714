package submit

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/flow"
	"github.com/iov-one/msigproxy/msigtest"
	"github.com/iov-one/msigproxy/msigtest/assert"
	"github.com/iov-one/msigproxy/x/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tendermint/tendermint/libs/log"
)

type harness struct {
	t       *testing.T
	loop    *flow.Loop
	stop    func()
	chain   *msigtest.Chain
	request *flow.State[Request]
	machine *Machine
	metrics *Metrics

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T, chain *msigtest.Chain, signer client.Signer, call []byte) *harness {
	t.Helper()
	return newLoggedHarness(t, chain, signer, call, nil)
}

func newLoggedHarness(t *testing.T, chain *msigtest.Chain, signer client.Signer, call []byte, logger log.Logger) *harness {
	t.Helper()
	loop, stop := msigtest.RunLoop(t)
	h := &harness{t: t, loop: loop, stop: stop, chain: chain}
	h.request = flow.NewState(Request{Signer: signer, Call: call, Submitter: chain})
	h.metrics = NewMetrics(prometheus.NewRegistry())
	h.machine = NewMachine(loop, h.request, Options{Logger: logger, Metrics: h.metrics})
	err := loop.Do(context.Background(), func() {
		h.machine.Start()
		h.machine.State().Subscribe(func(s State) {
			h.mu.Lock()
			h.states = append(h.states, s)
			h.mu.Unlock()
		})
	})
	assert.Nil(t, err)
	return h
}

func (h *harness) close() {
	_ = h.loop.Do(context.Background(), h.machine.Stop)
	h.stop()
}

func (h *harness) current() State {
	return msigtest.Read[State](h.t, h.loop, h.machine.State())
}

func (h *harness) waitFor(kind Kind) State {
	h.t.Helper()
	assert.Eventually(h.t, time.Second, func() bool {
		return h.current().Kind == kind
	})
	return h.current()
}

// kinds returns the phases seen so far.
func (h *harness) kinds() []Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Kind, 0, len(h.states))
	for _, s := range h.states {
		out = append(out, s.Kind)
	}
	return out
}

// flush waits until everything posted to the loop so far was executed.
func (h *harness) flush() {
	assert.Nil(h.t, h.loop.Do(context.Background(), func() {}))
}

var call = []byte{0x04, 0x00, 0x01}

func TestMachineFinalizes(t *testing.T) {
	chain := msigtest.NewChain(msigproxy.GenericPrefix)
	h := newHarness(t, chain, msigtest.NewSigner(2), call)
	defer h.close()

	h.machine.Submit()
	st := h.waitFor(Finalized)
	assert.Equal(t, true, st.OK)
	assert.Equal(t, "0x01", st.Block)
	assert.Nil(t, st.Err)
	if st.Attempt == "" {
		t.Fatal("attempt has no id")
	}
	assert.Equal(t, []Kind{Idle, Signing, Validating, Broadcast, InBlock, Finalized}, h.kinds())
	assert.Equal(t, [][]byte{append([]byte("sig:"), call...)}, chain.Submitted())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Attempts.WithLabelValues("finalized")))
}

func TestMachineDropsWhileBusy(t *testing.T) {
	chain := msigtest.NewChain(msigproxy.GenericPrefix)
	chain.Step = make(chan struct{})
	h := newHarness(t, chain, msigtest.NewSigner(2), call)
	defer h.close()

	h.machine.Submit()
	h.waitFor(Validating)
	chain.Step <- struct{}{}
	first := h.waitFor(Broadcast)

	h.machine.Submit()
	h.machine.Submit()
	h.flush()
	assert.Equal(t, 1, len(chain.Submitted()))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.Dropped))

	chain.Step <- struct{}{}
	chain.Step <- struct{}{}
	h.waitFor(Finalized)
	assert.Equal(t, 1, len(chain.Submitted()))

	// A finished attempt accepts a new request.
	h.machine.Submit()
	h.waitFor(Validating)
	for i := 0; i < 3; i++ {
		chain.Step <- struct{}{}
	}
	second := h.waitFor(Finalized)
	assert.Equal(t, 2, len(chain.Submitted()))
	if first.Attempt == second.Attempt {
		t.Fatal("second attempt reuses the id of the first one")
	}
}

func TestMachineStopCancelsAttempt(t *testing.T) {
	chain := msigtest.NewChain(msigproxy.GenericPrefix)
	chain.Step = make(chan struct{})
	h := newHarness(t, chain, msigtest.NewSigner(2), call)
	defer h.close()

	h.machine.Submit()
	h.waitFor(Validating)
	chain.Step <- struct{}{}
	h.waitFor(Broadcast)

	assert.Nil(t, h.loop.Do(context.Background(), h.machine.Stop))
	assert.Equal(t, Idle, h.current().Kind)

	// A restarted machine does not report the cancelled attempt and
	// accepts a new one.
	assert.Nil(t, h.loop.Do(context.Background(), h.machine.Start))
	assert.Equal(t, Idle, h.current().Kind)
	h.machine.Submit()
	h.waitFor(Validating)
	for i := 0; i < 3; i++ {
		chain.Step <- struct{}{}
	}
	h.waitFor(Finalized)
	assert.Equal(t, 2, len(chain.Submitted()))
}

// lockedBuffer is written by attempt goroutines and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMachineSignerLogsWithAttemptLogger(t *testing.T) {
	cases := map[string]struct {
		signerErr error
		wantKind  Kind
		wantLine  string
	}{
		"signed": {
			wantKind: Finalized,
			wantLine: "signed",
		},
		"refused": {
			signerErr: errors.Wrap(errors.ErrHuman, "cancelled by user"),
			wantKind:  Error,
			wantLine:  "signing failed",
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var out lockedBuffer
			logger := log.NewFilter(log.NewTMLogger(&out), log.AllowDebug())
			signer := msigtest.NewSigner(2)
			signer.Err = tc.signerErr

			chain := msigtest.NewChain(msigproxy.GenericPrefix)
			h := newLoggedHarness(t, chain, utils.Logging(signer), call, logger)
			defer h.close()

			h.machine.Submit()
			st := h.waitFor(tc.wantKind)

			var line string
			for _, l := range strings.Split(out.String(), "\n") {
				if strings.Contains(l, tc.wantLine) && strings.Contains(l, "call_size=") {
					line = l
				}
			}
			if line == "" {
				t.Fatalf("no %q line in\n%s", tc.wantLine, out.String())
			}
			// The signer logs with the fields of the attempt.
			if !strings.Contains(line, "attempt="+st.Attempt) || !strings.Contains(line, "module=submit") {
				t.Fatalf("signer line without attempt fields: %s", line)
			}
		})
	}
}

func TestMachineFailures(t *testing.T) {
	cases := map[string]struct {
		configure  func(*msigtest.Chain, *msigtest.Signer)
		wantKind   Kind
		wantErr    *errors.Error
		wantOK     bool
		wantMetric string
	}{
		"rejected by validation": {
			configure: func(c *msigtest.Chain, s *msigtest.Signer) {
				c.SubmitErr = errors.Wrap(errors.ErrInvalidTx, "bad nonce")
			},
			wantKind:   Invalid,
			wantErr:    errors.ErrInvalidTx,
			wantMetric: "invalid",
		},
		"dropped by the network": {
			configure: func(c *msigtest.Chain, s *msigtest.Signer) {
				c.Events = []client.SubmissionEvent{
					{Kind: client.EventBroadcast},
					{Kind: client.EventInvalid, Reason: "dropped"},
				}
			},
			wantKind:   Invalid,
			wantErr:    errors.ErrInvalidTx,
			wantMetric: "invalid",
		},
		"signing refused": {
			configure: func(c *msigtest.Chain, s *msigtest.Signer) {
				s.Err = errors.Wrap(errors.ErrHuman, "cancelled by user")
			},
			wantKind:   Error,
			wantErr:    errors.ErrHuman,
			wantMetric: "error",
		},
		"transport failure": {
			configure: func(c *msigtest.Chain, s *msigtest.Signer) {
				c.SubmitErr = errors.Wrap(errors.ErrConnectionLost, "socket closed")
			},
			wantKind:   Error,
			wantErr:    errors.ErrConnectionLost,
			wantMetric: "error",
		},
		"watch ended early": {
			configure: func(c *msigtest.Chain, s *msigtest.Signer) {
				c.Events = []client.SubmissionEvent{{Kind: client.EventBroadcast}}
			},
			wantKind:   Error,
			wantErr:    errors.ErrConnectionLost,
			wantMetric: "error",
		},
		"dispatch failed": {
			configure: func(c *msigtest.Chain, s *msigtest.Signer) {
				c.Events = []client.SubmissionEvent{
					{Kind: client.EventBroadcast},
					{Kind: client.EventInBlock, Block: "0x02", Reason: "BadOrigin"},
					{Kind: client.EventFinalized, Block: "0x02", Reason: "BadOrigin"},
				}
			},
			wantKind:   Finalized,
			wantErr:    errors.ErrDispatch,
			wantMetric: "dispatch_failed",
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			chain := msigtest.NewChain(msigproxy.GenericPrefix)
			signer := msigtest.NewSigner(2)
			tc.configure(chain, signer)
			h := newHarness(t, chain, signer, call)
			defer h.close()

			h.machine.Submit()
			st := h.waitFor(tc.wantKind)
			assert.Equal(t, tc.wantOK, st.OK)
			assert.IsErr(t, tc.wantErr, st.Err)
			assert.Equal(t, true, st.Terminal())
			assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Attempts.WithLabelValues(tc.wantMetric)))

			// Every terminal state accepts a new request.
			h.machine.Submit()
			assert.Eventually(t, time.Second, func() bool {
				return testutil.ToFloat64(h.metrics.Attempts.WithLabelValues(tc.wantMetric)) == 2
			})
		})
	}
}

type panicSigner struct{}

func (panicSigner) Address() msigproxy.Address { return msigtest.Address(2) }

func (panicSigner) SignTx(context.Context, []byte) ([]byte, error) {
	panic("wallet crashed")
}

func TestMachineRecoversPanic(t *testing.T) {
	chain := msigtest.NewChain(msigproxy.GenericPrefix)
	h := newHarness(t, chain, panicSigner{}, call)
	defer h.close()

	h.machine.Submit()
	st := h.waitFor(Error)
	assert.IsErr(t, errors.ErrPanic, st.Err)
}

func TestMachineIgnoresIncompleteRequest(t *testing.T) {
	cases := map[string]struct {
		signer client.Signer
		call   []byte
	}{
		"no signer": {call: call},
		"no call":   {signer: msigtest.NewSigner(2)},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			chain := msigtest.NewChain(msigproxy.GenericPrefix)
			h := newHarness(t, chain, tc.signer, tc.call)
			defer h.close()

			h.machine.Submit()
			h.flush()
			assert.Equal(t, Idle, h.current().Kind)
			assert.Equal(t, 0, len(chain.Submitted()))

			// Once the request is complete, a trigger starts an
			// attempt.
			assert.Nil(t, h.loop.Do(context.Background(), func() {
				h.request.Set(Request{Signer: msigtest.NewSigner(2), Call: call, Submitter: chain})
			}))
			h.machine.Submit()
			h.waitFor(Finalized)
		})
	}
}

func TestStateHelpers(t *testing.T) {
	cases := map[string]struct {
		state        State
		wantBusy     bool
		wantTerminal bool
	}{
		"idle":       {state: State{Kind: Idle}},
		"signing":    {state: State{Kind: Signing}, wantBusy: true},
		"validating": {state: State{Kind: Validating}, wantBusy: true},
		"broadcast":  {state: State{Kind: Broadcast}, wantBusy: true},
		"in block":   {state: State{Kind: InBlock, OK: true}, wantBusy: true},
		"finalized":  {state: State{Kind: Finalized, OK: true}, wantTerminal: true},
		"invalid":    {state: State{Kind: Invalid}, wantTerminal: true},
		"error":      {state: State{Kind: Error}, wantTerminal: true},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.wantBusy, tc.state.Busy())
			assert.Equal(t, tc.wantTerminal, tc.state.Terminal())
		})
	}
}
