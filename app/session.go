package app

import (
	"context"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/flow"
	"github.com/iov-one/msigproxy/params"
	"github.com/iov-one/msigproxy/x/calldata"
	"github.com/iov-one/msigproxy/x/extension"
	"github.com/iov-one/msigproxy/x/linked"
	"github.com/iov-one/msigproxy/x/submit"
	"github.com/iov-one/msigproxy/x/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendermint/tendermint/libs/log"
)

// Config holds the collaborators of a Session.
type Config struct {
	Connector client.Connector
	// Wallets may be nil, in which case no account can sign.
	Wallets extension.Provider
	// Index is used to discover group declarations. It may be nil.
	Index  linked.Index
	Logger log.Logger
	// Registerer receives submission and tracker metrics. It may be nil.
	Registerer prometheus.Registerer
	// LinkBase is the address shared links point to.
	LinkBase string
	// MaxDepth limits the account tree. Zero means linked.DefaultMaxDepth.
	MaxDepth int
	Wallet   extension.Options
}

// Mode tells whether the user edits the selection or came to submit a
// call someone shared.
type Mode int

const (
	ModeEdit Mode = iota
	ModeSubmit
)

func (m Mode) String() string {
	if m == ModeSubmit {
		return "submit"
	}
	return "edit"
}

// Session is the state of a single user working on a single call.
type Session struct {
	loop   *flow.Loop
	cfg    Config
	logger log.Logger

	chain    *flow.State[client.Selection]
	callData *flow.State[string]
	proxy    *flow.State[msigproxy.Address]
	multisig *flow.State[*params.Multisig]
	wallet   *flow.State[string]
	account  *flow.State[msigproxy.Address]
	mode     *flow.State[Mode]

	conn       *flow.Derived[flow.Result[*client.Chain]]
	connected  *flow.Derived[bool]
	call       *flow.Derived[calldata.Call]
	spec       *flow.Derived[MultisigSpec]
	linked     *flow.Derived[flow.Result[Linked]]
	walletConn *flow.Derived[extension.State]
	accounts   *flow.Derived[[]extension.Account]
	eligible   *flow.Derived[[]extension.Account]
	signer     *flow.Derived[SignerState]
	selection  *flow.Derived[params.Selection]
	action     *flow.Derived[Action]
	tracking   *flow.Derived[Tracking]
	request    *flow.Derived[submit.Request]
	machine    *submit.Machine

	trackerMetrics *tracker.Metrics
	release        func()
}

// NewSession builds the cells of a session. Nothing is connected until the
// session is started.
func NewSession(loop *flow.Loop, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Session{
		loop:     loop,
		cfg:      cfg,
		logger:   logger.With("module", "app"),
		chain:    flow.NewState(client.DefaultSelection),
		callData: flow.NewState(""),
		proxy:    flow.NewState(msigproxy.Address("")),
		multisig: flow.NewState[*params.Multisig](nil),
		wallet:   flow.NewState(""),
		account:  flow.NewState(msigproxy.Address("")),
		mode:     flow.NewState(ModeEdit),

		trackerMetrics: tracker.NewMetrics(cfg.Registerer),
	}
	s.conn = s.connection()
	s.connected = flow.Map(s.conn, func(r flow.Result[*client.Chain]) bool { return r.Ready() })
	s.call = s.assembleCall()
	s.spec = flow.Map(s.multisig, declaredSpec)
	s.linked = s.resolveLinked()
	s.walletConn = s.walletConnection()
	s.accounts = extension.Accounts(loop, s.walletConn)
	s.eligible = flow.Combine2(s.accounts, s.linked, eligibleAccounts)
	s.signer = s.resolveSigner()
	s.selection = flow.Combine4(s.chain, s.callData, s.proxy, s.multisig, selectionOf)
	s.action = flow.Combine2(s.signer, s.selection, s.actionOf)
	s.tracking = s.track()
	s.request = flow.Combine3(s.conn, s.call, s.signer, requestOf)
	s.machine = submit.NewMachine(loop, s.request, submit.Options{
		Logger:  logger,
		Metrics: submit.NewMetrics(cfg.Registerer),
	})
	return s
}

// Start connects to the selected chain and wallet and keeps every derived
// value up to date until Stop is called.
func (s *Session) Start(ctx context.Context) error {
	return s.loop.Do(ctx, func() {
		if s.release != nil {
			return
		}
		s.machine.Start()
		releases := []func(){
			s.connected.Subscribe(func(bool) {}),
			s.eligible.Subscribe(func([]extension.Account) {}),
			s.action.Subscribe(func(Action) {}),
			s.tracking.Subscribe(func(Tracking) {}),
		}
		s.release = func() {
			for _, r := range releases {
				r()
			}
			s.machine.Stop()
		}
		s.logger.Debug("session started")
	})
}

// Stop cancels the submission in progress, closes the chain connection and
// disconnects the wallet.
func (s *Session) Stop(ctx context.Context) error {
	return s.loop.Do(ctx, func() {
		if s.release == nil {
			return
		}
		s.release()
		s.release = nil
		s.logger.Debug("session stopped")
	})
}

// Restore replaces the selection with a persisted one. The session switches
// to submit mode when the selection carries both a chain and a call.
func (s *Session) Restore(sel params.Selection) {
	s.loop.Post(func() {
		if sel.Chain != nil {
			s.chain.Set(*sel.Chain)
		}
		s.callData.Set(sel.CallData)
		s.proxy.Set(sel.Proxy)
		s.multisig.Set(sel.Multisig)
		if sel.HasChain() && sel.HasCallData() {
			s.mode.Set(ModeSubmit)
		} else {
			s.mode.Set(ModeEdit)
		}
	})
}

func (s *Session) SetChain(sel client.Selection) {
	s.loop.Post(func() { s.chain.Set(sel) })
}

func (s *Session) SetCallData(hex string) {
	s.loop.Post(func() { s.callData.Set(hex) })
}

func (s *Session) SetProxy(a msigproxy.Address) {
	s.loop.Post(func() { s.proxy.Set(a) })
}

// SetMultisig declares the group approving the call. A nil declaration
// removes it.
func (s *Session) SetMultisig(m *params.Multisig) {
	s.loop.Post(func() { s.multisig.Set(m) })
}

// SelectWallet connects to the wallet called name, disconnecting the
// previous one. An empty name disconnects.
func (s *Session) SelectWallet(name string) {
	s.loop.Post(func() { s.wallet.Set(name) })
}

func (s *Session) SelectAccount(a msigproxy.Address) {
	s.loop.Post(func() { s.account.Set(a) })
}

func (s *Session) SetMode(m Mode) {
	s.loop.Post(func() { s.mode.Set(m) })
}

// Submit asks the machine for a new attempt. It is ignored while an attempt
// is in progress.
func (s *Session) Submit() {
	s.machine.Submit()
}

// ImportMultisig looks up the declaration of a group account in the index
// and uses it as the multisig of the session.
func (s *Session) ImportMultisig(ctx context.Context, account msigproxy.Address) (*msigproxy.CompositeSpec, error) {
	if s.cfg.Index == nil {
		return nil, errors.Wrap(errors.ErrState, "no multisig index configured")
	}
	spec, err := s.cfg.Index.LookupMultisig(ctx, account)
	if err != nil {
		return nil, errors.Wrapf(err, "import %s", account)
	}
	m := &params.Multisig{
		Addresses: append([]msigproxy.Address(nil), spec.Members...),
		Threshold: spec.Threshold,
	}
	if err := s.loop.Do(ctx, func() { s.multisig.Set(m) }); err != nil {
		return nil, err
	}
	return spec, nil
}

// Connection holds the chain connection, Pending while connecting.
func (s *Session) Connection() flow.Cell[flow.Result[*client.Chain]] { return s.conn }

// Connected is true once the chain connection is established.
func (s *Session) Connected() flow.Cell[bool] { return s.connected }

func (s *Session) Call() flow.Cell[calldata.Call] { return s.call }

func (s *Session) Multisig() flow.Cell[MultisigSpec] { return s.spec }

func (s *Session) Linked() flow.Cell[flow.Result[Linked]] { return s.linked }

func (s *Session) Wallet() flow.Cell[extension.State] { return s.walletConn }

// Accounts holds all accounts shared by the connected wallet.
func (s *Session) Accounts() flow.Cell[[]extension.Account] { return s.accounts }

// EligibleAccounts holds the shared accounts that can sign for the target.
func (s *Session) EligibleAccounts() flow.Cell[[]extension.Account] { return s.eligible }

func (s *Session) Signer() flow.Cell[SignerState] { return s.signer }

func (s *Session) Action() flow.Cell[Action] { return s.action }

func (s *Session) Tracking() flow.Cell[Tracking] { return s.tracking }

func (s *Session) Submission() flow.Cell[submit.State] { return s.machine.State() }

func (s *Session) Mode() flow.Cell[Mode] { return s.mode }

// Selection holds everything that is persisted in a link.
func (s *Session) Selection() flow.Cell[params.Selection] { return s.selection }

func selectionOf(chain client.Selection, call string, proxy msigproxy.Address, m *params.Multisig) params.Selection {
	c := chain
	return params.Selection{Chain: &c, CallData: call, Proxy: proxy, Multisig: m}
}
