package app

import (
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
	"github.com/iov-one/msigproxy/params"
	"github.com/iov-one/msigproxy/x/extension"
	"github.com/iov-one/msigproxy/x/submit"
	"github.com/stretchr/testify/require"
)

var (
	local = client.Selection{Type: client.ChainRPC, Relay: "local"}
	other = client.Selection{Type: client.ChainRPC, Relay: "other"}

	call    = []byte{0xde, 0xad, 0xbe, 0xef}
	callHex = "0xdeadbeef"

	fast = extension.Options{FastPoll: time.Millisecond, SlowPoll: 5 * time.Millisecond, RetryDelay: time.Millisecond}
)

type fixture struct {
	t       *testing.T
	loop    *flow.Loop
	stop    func()
	chain   *msigtest.Chain
	other   *msigtest.Chain
	wallet  *extension.StaticWallet
	session *Session
}

// newFixture returns a session connected to a local chain, with a wallet
// called "test" sharing the accounts of given signers.
func newFixture(t *testing.T, cfg Config, signers ...client.Signer) *fixture {
	t.Helper()
	loop, stop := msigtest.RunLoop(t)
	f := &fixture{
		t:     t,
		loop:  loop,
		stop:  stop,
		chain: msigtest.NewChain(msigproxy.GenericPrefix),
		other: msigtest.NewChain(msigproxy.GenericPrefix),
	}
	wallets := extension.NewStatic()
	f.wallet = wallets.Add("test", signers...)
	cfg.Connector = &msigtest.Connector{Chains: map[string]*msigtest.Chain{
		"local": f.chain,
		"other": f.other,
	}}
	cfg.Wallets = wallets
	cfg.Wallet = fast
	if cfg.LinkBase == "" {
		cfg.LinkBase = "https://example.org/"
	}
	f.session = NewSession(loop, cfg)
	return f
}

func (f *fixture) start() {
	f.t.Helper()
	require.NoError(f.t, f.session.Start(context.Background()))
}

func (f *fixture) close() {
	_ = f.session.Stop(context.Background())
	f.stop()
}

func read[T any](f *fixture, c flow.Cell[T]) T {
	f.t.Helper()
	return msigtest.Read(f.t, f.loop, c)
}

func (f *fixture) waitAction(kind ActionKind) Action {
	f.t.Helper()
	assert.Eventually(f.t, time.Second, func() bool {
		return read(f, f.session.Action()).Kind == kind
	})
	return read(f, f.session.Action())
}

func (f *fixture) waitSubmission(kind submit.Kind) submit.State {
	f.t.Helper()
	assert.Eventually(f.t, time.Second, func() bool {
		return read(f, f.session.Submission()).Kind == kind
	})
	return read(f, f.session.Submission())
}

func multisigOf(threshold uint16, members ...byte) *params.Multisig {
	m := &params.Multisig{Threshold: threshold}
	for _, b := range members {
		m.Addresses = append(m.Addresses, msigtest.Address(b))
	}
	return m
}

func TestSessionApprovesMultisig(t *testing.T) {
	f := newFixture(t, Config{}, msigtest.NewSigner(2))
	defer f.close()

	f.session.Restore(params.Selection{
		Chain:    &local,
		CallData: callHex,
		Multisig: multisigOf(2, 1, 2, 3),
	})
	f.session.SelectWallet("test")
	f.session.SelectAccount(msigtest.Address(2))
	f.start()

	action := f.waitAction(ActionMultisig)
	spec := msigtest.Spec(2, 1, 2, 3)
	group := msigtest.SpecID(spec)
	assert.Equal(t, group, action.Multisig.Account)
	sel, err := params.ParseLink(action.Link)
	require.NoError(t, err)
	assert.Equal(t, callHex, sel.CallData)
	assert.Equal(t, spec.Members, sel.Multisig.Addresses)
	assert.Equal(t, ModeSubmit, read(f, f.session.Mode()))
	assert.Equal(t, true, read(f, f.session.Connected()))

	assert.Eventually(t, time.Second, func() bool {
		return read(f, f.session.Tracking()).Status.Loaded
	})
	tracking := read(f, f.session.Tracking())
	assert.Equal(t, true, tracking.Active)
	assert.Equal(t, group, tracking.Multisig)
	assert.Equal(t, msigproxy.CallHash(call), tracking.CallHash)
	assert.Equal(t, false, tracking.AlreadyApproved)
	assert.Equal(t, "no approvals yet, you will create the operation and 1 more will be needed", tracking.Summary)

	var (
		mu    sync.Mutex
		kinds []submit.Kind
	)
	require.NoError(t, f.loop.Do(context.Background(), func() {
		f.session.Submission().Subscribe(func(s submit.State) {
			mu.Lock()
			kinds = append(kinds, s.Kind)
			mu.Unlock()
		})
	}))
	f.session.Submit()
	st := f.waitSubmission(submit.Finalized)
	assert.Equal(t, true, st.OK)

	mu.Lock()
	assert.Equal(t, []submit.Kind{submit.Idle, submit.Signing, submit.Validating, submit.Broadcast, submit.InBlock, submit.Finalized}, kinds)
	mu.Unlock()

	others, err := spec.OtherSignatories(msigtest.Address(2))
	require.NoError(t, err)
	wrapped := f.chain.Calls.AsMultiCall(2, others, nil, call, client.DefaultWeight)
	assert.Equal(t, [][]byte{append([]byte("sig:"), wrapped...)}, f.chain.Submitted())
}

func TestSessionFollowsApprovals(t *testing.T) {
	f := newFixture(t, Config{}, msigtest.NewSigner(2))
	defer f.close()

	spec := msigtest.Spec(2, 1, 2, 3)
	group := msigtest.SpecID(spec)
	f.session.Restore(params.Selection{Chain: &local, CallData: callHex, Multisig: multisigOf(2, 1, 2, 3)})
	f.session.SelectWallet("test")
	f.session.SelectAccount(msigtest.Address(2))
	f.start()
	f.waitAction(ActionMultisig)

	assert.Eventually(t, time.Second, func() bool {
		return f.chain.Watchers(group, msigproxy.CallHash(call)) > 0
	})
	f.chain.SetRecord(group, msigproxy.CallHash(call), &client.MultisigRecord{
		When:      client.Timepoint{Height: 10, Index: 1},
		Depositor: msigtest.Account(2),
		Approvals: []msigproxy.AccountID{msigtest.Account(2)},
	})
	assert.Eventually(t, time.Second, func() bool {
		return read(f, f.session.Tracking()).AlreadyApproved
	})
	assert.Equal(t, "you already approved, 1 of 2 approvals", read(f, f.session.Tracking()).Summary)

	// Submitting again is refused by the signer.
	f.session.Submit()
	st := f.waitSubmission(submit.Invalid)
	assert.IsErr(t, errors.ErrInvalidTx, st.Err)
	assert.Equal(t, 0, len(f.chain.Submitted()))

	// Stopping releases the watch.
	require.NoError(t, f.session.Stop(context.Background()))
	assert.Eventually(t, time.Second, func() bool {
		return f.chain.Watchers(group, msigproxy.CallHash(call)) == 0
	})
}

func TestSessionProxyOfMultisig(t *testing.T) {
	f := newFixture(t, Config{}, msigtest.NewSigner(2))
	defer f.close()

	spec := msigtest.Spec(2, 1, 2, 3)
	group := msigtest.SpecID(spec)
	proxy := msigtest.Account(9)
	f.chain.SetProxies(proxy, group)

	f.session.Restore(params.Selection{
		Chain:    &local,
		CallData: callHex,
		Proxy:    proxy.Address(msigproxy.GenericPrefix),
		Multisig: multisigOf(2, 1, 2, 3),
	})
	f.session.SelectWallet("test")
	f.session.SelectAccount(msigtest.Address(2))
	f.start()

	f.waitAction(ActionMultisig)
	linked := read(f, f.session.Linked())
	require.True(t, linked.Ready())
	assert.Equal(t, "", linked.Value.Warning)
	assert.Equal(t, proxy.Address(msigproxy.GenericPrefix), linked.Value.Target)

	proxied := f.chain.Calls.ProxyCall(proxy, call)
	assert.Eventually(t, time.Second, func() bool {
		return read(f, f.session.Tracking()).Status.Loaded
	})
	assert.Equal(t, msigproxy.CallHash(proxied), read(f, f.session.Tracking()).CallHash)

	f.session.Submit()
	f.waitSubmission(submit.Finalized)
	others, err := spec.OtherSignatories(msigtest.Address(2))
	require.NoError(t, err)
	wrapped := f.chain.Calls.AsMultiCall(2, others, nil, proxied, client.DefaultWeight)
	assert.Equal(t, [][]byte{append([]byte("sig:"), wrapped...)}, f.chain.Submitted())
}

func TestSessionDirectDelegate(t *testing.T) {
	f := newFixture(t, Config{}, msigtest.NewSigner(5))
	defer f.close()

	proxy := msigtest.Account(9)
	f.chain.SetProxies(proxy, msigtest.Account(5))
	f.session.Restore(params.Selection{
		Chain:    &local,
		CallData: callHex,
		Proxy:    proxy.Address(msigproxy.GenericPrefix),
	})
	f.session.SelectWallet("test")
	f.session.SelectAccount(msigtest.Address(5))
	f.start()

	action := f.waitAction(ActionDirect)
	assert.Equal(t, "", action.Link)
	assert.Equal(t, false, read(f, f.session.Tracking()).Active)
	assert.Equal(t, []extension.Account{{Address: msigtest.Address(5)}}, read(f, f.session.EligibleAccounts()))

	f.session.Submit()
	f.waitSubmission(submit.Finalized)
	want := append([]byte("sig:"), f.chain.Calls.ProxyCall(proxy, call)...)
	assert.Equal(t, [][]byte{want}, f.chain.Submitted())
}

func TestSessionMultisigNotDelegate(t *testing.T) {
	f := newFixture(t, Config{}, msigtest.NewSigner(2))
	defer f.close()

	proxy := msigtest.Account(9)
	f.chain.SetProxies(proxy, msigtest.Account(5))
	f.session.Restore(params.Selection{
		Chain:    &local,
		CallData: callHex,
		Proxy:    proxy.Address(msigproxy.GenericPrefix),
		Multisig: multisigOf(2, 1, 2, 3),
	})
	f.session.SelectWallet("test")
	f.session.SelectAccount(msigtest.Address(2))
	f.start()

	assert.Eventually(t, time.Second, func() bool {
		return read(f, f.session.Linked()).Ready()
	})
	assert.Equal(t, NotDelegateWarning, read(f, f.session.Linked()).Value.Warning)
	assert.Eventually(t, time.Second, func() bool {
		return errors.ErrNoSignerPath.Is(read(f, f.session.Signer()).Err)
	})
	assert.Equal(t, ActionNone, read(f, f.session.Action()).Kind)
	assert.Equal(t, 0, len(read(f, f.session.EligibleAccounts())))
}

func TestDeclaredSpec(t *testing.T) {
	cases := map[string]struct {
		multisig *params.Multisig
		declared bool
		wantErr  *errors.Error
		field    string
	}{
		"nothing declared": {
			multisig: nil,
		},
		"valid": {
			multisig: multisigOf(2, 1, 2, 3),
			declared: true,
		},
		"missing member": {
			multisig: &params.Multisig{Threshold: 1, Addresses: []msigproxy.Address{msigtest.Address(1), ""}},
			declared: true,
			wantErr:  errors.ErrEmpty,
			field:    "Members.1",
		},
		"duplicate member": {
			multisig: multisigOf(1, 1, 1),
			declared: true,
			wantErr:  errors.ErrDuplicate,
			field:    "Members.1",
		},
		"threshold too high": {
			multisig: multisigOf(3, 1, 2),
			declared: true,
			wantErr:  errors.ErrInput,
			field:    "Threshold",
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got := declaredSpec(tc.multisig)
			assert.Equal(t, tc.declared, got.Declared)
			if tc.wantErr == nil {
				assert.Nil(t, got.Err)
				assert.Equal(t, tc.declared, got.Valid())
				return
			}
			assert.Equal(t, false, got.Valid())
			assert.FieldError(t, got.Err, tc.field, tc.wantErr)
		})
	}
}

func TestSessionNothingToResolve(t *testing.T) {
	f := newFixture(t, Config{})
	defer f.close()

	f.session.Restore(params.Selection{Chain: &local})
	f.start()

	// Not connected first, then nothing selected.
	assert.Eventually(t, time.Second, func() bool {
		return errors.ErrEmpty.Is(read(f, f.session.Linked()).Err)
	})
	assert.Equal(t, ModeEdit, read(f, f.session.Mode()))
}

func TestSessionSwitchChain(t *testing.T) {
	f := newFixture(t, Config{})
	defer f.close()

	f.session.Restore(params.Selection{Chain: &local, CallData: callHex})
	f.start()
	assert.Eventually(t, time.Second, func() bool {
		return read(f, f.session.Call()).Ready()
	})

	f.session.SetChain(other)
	assert.Eventually(t, time.Second, f.chain.Closed)
	assert.Eventually(t, time.Second, func() bool {
		c := read(f, f.session.Connection())
		return c.Ready() && c.Value.Selection == other
	})
	assert.Equal(t, false, f.other.Closed())

	require.NoError(t, f.session.Stop(context.Background()))
	assert.Eventually(t, time.Second, f.other.Closed)
}

func TestSessionInvalidChain(t *testing.T) {
	f := newFixture(t, Config{})
	defer f.close()

	f.session.SetChain(client.Selection{Type: "carrier pigeon", Relay: "local"})
	f.start()

	c := read(f, f.session.Connection())
	assert.IsErr(t, errors.ErrInput, c.Err)
	assert.Equal(t, false, read(f, f.session.Connected()))
}

func TestSessionCallData(t *testing.T) {
	f := newFixture(t, Config{})
	defer f.close()

	f.session.Restore(params.Selection{Chain: &local, CallData: "0xzz"})
	f.start()

	assert.Eventually(t, time.Second, func() bool {
		return read(f, f.session.Call()).PossibleError()
	})
	assert.IsErr(t, errors.ErrInvalidCallData, read(f, f.session.Call()).Err)

	f.session.SetCallData(callHex)
	assert.Eventually(t, time.Second, func() bool {
		return read(f, f.session.Call()).Ready()
	})
	c := read(f, f.session.Call())
	assert.Equal(t, msigproxy.CallHash(call), c.Hash)
	assert.Equal(t, call, []byte(c.Encoded))
}

func TestSessionStopDisconnectsWallet(t *testing.T) {
	f := newFixture(t, Config{}, msigtest.NewSigner(2))
	defer f.close()

	f.session.Restore(params.Selection{Chain: &local, CallData: callHex, Multisig: multisigOf(2, 1, 2, 3)})
	f.session.SelectWallet("test")
	f.session.SelectAccount(msigtest.Address(2))
	f.start()
	f.waitAction(ActionMultisig)
	assert.Equal(t, 1, f.wallet.Open())

	f.session.SelectWallet("")
	assert.Eventually(t, time.Second, func() bool {
		return f.wallet.Open() == 0
	})
	f.waitAction(ActionNone)
	assert.IsErr(t, errors.ErrState, read(f, f.session.Signer()).Err)

	f.session.SelectWallet("test")
	f.waitAction(ActionMultisig)
	require.NoError(t, f.session.Stop(context.Background()))
	assert.Eventually(t, time.Second, func() bool {
		return f.wallet.Open() == 0
	})
	assert.Equal(t, 2, f.wallet.Opened())
}

type indexFunc func(ctx context.Context, account msigproxy.Address) (*msigproxy.CompositeSpec, error)

func (fn indexFunc) LookupMultisig(ctx context.Context, account msigproxy.Address) (*msigproxy.CompositeSpec, error) {
	return fn(ctx, account)
}

func TestSessionImportMultisig(t *testing.T) {
	spec := msigtest.Spec(2, 1, 2, 3)
	group := msigtest.SpecID(spec).Address(msigproxy.GenericPrefix)
	index := indexFunc(func(ctx context.Context, account msigproxy.Address) (*msigproxy.CompositeSpec, error) {
		if account != group {
			return nil, errors.Wrap(errors.ErrNotFound, "unknown")
		}
		return &spec, nil
	})

	f := newFixture(t, Config{Index: index})
	defer f.close()
	f.start()

	got, err := f.session.ImportMultisig(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, spec, *got)
	m := read(f, f.session.Multisig())
	assert.Equal(t, true, m.Valid())
	assert.Equal(t, msigtest.SpecID(spec), m.ID)

	_, err = f.session.ImportMultisig(context.Background(), msigtest.Address(7))
	assert.IsErr(t, errors.ErrNotFound, err)

	bare := newFixture(t, Config{})
	defer bare.close()
	_, err = bare.session.ImportMultisig(context.Background(), group)
	assert.IsErr(t, errors.ErrState, err)
}

func TestSessionDiscoversIndexedMultisig(t *testing.T) {
	spec := msigtest.Spec(2, 1, 2, 3)
	group := msigtest.SpecID(spec)
	proxy := msigtest.Account(9)
	index := indexFunc(func(ctx context.Context, account msigproxy.Address) (*msigproxy.CompositeSpec, error) {
		if id, _ := msigproxy.Canonicalize(account); id == group {
			return &spec, nil
		}
		return nil, errors.Wrap(errors.ErrNotFound, "unknown")
	})
	f := newFixture(t, Config{Index: index}, msigtest.NewSigner(3))
	defer f.close()
	f.chain.SetProxies(proxy, group)

	f.session.Restore(params.Selection{Chain: &local, CallData: callHex, Proxy: proxy.Address(msigproxy.GenericPrefix)})
	f.session.SelectWallet("test")
	f.session.SelectAccount(msigtest.Address(3))
	f.start()

	action := f.waitAction(ActionMultisig)
	assert.Equal(t, group, action.Multisig.Account)
	// The discovered group is part of the shared link.
	if !strings.Contains(action.Link, "signatories=") {
		t.Fatalf("link without signatories: %s", action.Link)
	}
	sel, err := params.ParseLink(action.Link)
	require.NoError(t, err)
	assert.Equal(t, spec.Members, sel.Multisig.Addresses)
	assert.Equal(t, spec.Threshold, sel.Multisig.Threshold)
}

func TestSessionNestedMultisig(t *testing.T) {
	// Proxy 9 is controlled by group M1 of {M2, 4}, M2 is the group of
	// {2, 3}, and 2 signs.
	inner := msigtest.Spec(2, 2, 3)
	m2 := msigtest.SpecID(inner)
	outer := msigproxy.CompositeSpec{
		Threshold: 2,
		Members:   []msigproxy.Address{m2.Address(msigproxy.GenericPrefix), msigtest.Address(4)},
	}
	m1 := msigtest.SpecID(outer)
	proxy := msigtest.Account(9)
	index := indexFunc(func(ctx context.Context, account msigproxy.Address) (*msigproxy.CompositeSpec, error) {
		switch id, _ := msigproxy.Canonicalize(account); id {
		case m1:
			return &outer, nil
		case m2:
			return &inner, nil
		}
		return nil, errors.Wrap(errors.ErrNotFound, "unknown")
	})
	f := newFixture(t, Config{Index: index}, msigtest.NewSigner(2))
	defer f.close()
	f.chain.SetProxies(proxy, m1)

	f.session.Restore(params.Selection{Chain: &local, CallData: callHex, Proxy: proxy.Address(msigproxy.GenericPrefix)})
	f.session.SelectWallet("test")
	f.session.SelectAccount(msigtest.Address(2))
	f.start()

	// The link and the tracked operation both refer to the group closest
	// to the proxy.
	action := f.waitAction(ActionMultisig)
	assert.Equal(t, m1, action.Multisig.Account)
	sel, err := params.ParseLink(action.Link)
	require.NoError(t, err)
	require.ElementsMatch(t, outer.Members, sel.Multisig.Addresses)
	assert.Equal(t, outer.Threshold, sel.Multisig.Threshold)

	proxied := f.chain.Calls.ProxyCall(proxy, call)
	assert.Eventually(t, time.Second, func() bool {
		return read(f, f.session.Tracking()).Status.Loaded
	})
	tracking := read(f, f.session.Tracking())
	assert.Equal(t, m1, tracking.Multisig)
	assert.Equal(t, action.Multisig.Account, tracking.Multisig)
	assert.Equal(t, msigproxy.CallHash(proxied), tracking.CallHash)

	f.session.Submit()
	f.waitSubmission(submit.Finalized)
	outerOthers, err := outer.OtherSignatories(m2.Address(msigproxy.GenericPrefix))
	require.NoError(t, err)
	innerOthers, err := inner.OtherSignatories(msigtest.Address(2))
	require.NoError(t, err)
	forOuter := f.chain.Calls.AsMultiCall(2, outerOthers, nil, proxied, client.DefaultWeight)
	forInner := f.chain.Calls.AsMultiCall(2, innerOthers, nil, forOuter, client.DefaultWeight)
	assert.Equal(t, [][]byte{append([]byte("sig:"), forInner...)}, f.chain.Submitted())
}
