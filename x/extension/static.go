package extension

import (
	"context"
	"sort"
	"sync"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
)

// Static is a Provider of wallets kept in memory. It is safe for
// concurrent use.
type Static struct {
	mu      sync.Mutex
	wallets map[string]*StaticWallet
}

var _ Provider = (*Static)(nil)

// NewStatic returns a provider without wallets.
func NewStatic() *Static {
	return &Static{wallets: make(map[string]*StaticWallet)}
}

// Add registers a wallet, replacing any wallet of the same name.
func (s *Static) Add(name string, signers ...client.Signer) *StaticWallet {
	w := &StaticWallet{signers: signers}
	s.mu.Lock()
	s.wallets[name] = w
	s.mu.Unlock()
	return w
}

// Remove makes a wallet unavailable.
func (s *Static) Remove(name string) {
	s.mu.Lock()
	delete(s.wallets, name)
	s.mu.Unlock()
}

func (s *Static) ListAvailable() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.wallets))
	for name := range s.wallets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Static) Connect(ctx context.Context, name string) (Handle, error) {
	s.mu.Lock()
	w, ok := s.wallets[name]
	s.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrConnectionRejected, "no wallet %q", name)
	}
	return w.connect()
}

// StaticWallet is a wallet of a Static provider.
type StaticWallet struct {
	mu      sync.Mutex
	signers []client.Signer
	// pending rejections left before a connection is accepted
	pending  int
	rejected error
	conns    []*staticHandle
	opened   int
}

// RejectPending makes the next n connections fail with a pending
// authorization.
func (w *StaticWallet) RejectPending(n int) {
	w.mu.Lock()
	w.pending = n
	w.mu.Unlock()
}

// Reject makes every connection fail with err, or succeed again if err is
// nil.
func (w *StaticWallet) Reject(err error) {
	w.mu.Lock()
	w.rejected = err
	w.mu.Unlock()
}

// SetSigners replaces the shared accounts and notifies every connection.
func (w *StaticWallet) SetSigners(signers ...client.Signer) {
	w.mu.Lock()
	w.signers = signers
	conns := append([]*staticHandle(nil), w.conns...)
	w.mu.Unlock()
	for _, h := range conns {
		h.notify()
	}
}

// Open returns the number of connections that were not disconnected.
func (w *StaticWallet) Open() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}

// Opened returns the number of connections ever established.
func (w *StaticWallet) Opened() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opened
}

func (w *StaticWallet) connect() (Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rejected != nil {
		return nil, errors.Wrap(errors.ErrConnectionRejected, w.rejected.Error())
	}
	if w.pending > 0 {
		w.pending--
		return nil, errors.Wrap(errors.ErrConnectionRejected, pendingAuthorization)
	}
	h := &staticHandle{wallet: w, subs: make(map[int]func([]Account))}
	w.conns = append(w.conns, h)
	w.opened++
	return h, nil
}

func (w *StaticWallet) release(h *staticHandle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.conns {
		if c == h {
			w.conns = append(w.conns[:i:i], w.conns[i+1:]...)
			return true
		}
	}
	return false
}

func (w *StaticWallet) current() []client.Signer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]client.Signer(nil), w.signers...)
}

type staticHandle struct {
	wallet *StaticWallet

	mu     sync.Mutex
	subs   map[int]func([]Account)
	nextID int
	closed bool
}

func (h *staticHandle) Accounts() []Account {
	if h.isClosed() {
		return nil
	}
	signers := h.wallet.current()
	accounts := make([]Account, 0, len(signers))
	for _, s := range signers {
		accounts = append(accounts, Account{Address: s.Address()})
	}
	return accounts
}

func (h *staticHandle) Subscribe(fn func([]Account)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *staticHandle) notify() {
	accounts := h.Accounts()
	h.mu.Lock()
	subs := make([]func([]Account), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()
	for _, fn := range subs {
		fn(accounts)
	}
}

func (h *staticHandle) Signer(address msigproxy.Address) (client.Signer, error) {
	if h.isClosed() {
		return nil, errors.Wrap(errors.ErrConnectionLost, "disconnected")
	}
	for _, s := range h.wallet.current() {
		if msigproxy.AddressesEquivalent(s.Address(), address) {
			return &handleSigner{inner: s, handle: h}, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "account %s", address)
}

func (h *staticHandle) Disconnect() error {
	h.mu.Lock()
	h.closed = true
	h.subs = make(map[int]func([]Account))
	h.mu.Unlock()
	if !h.wallet.release(h) {
		return errors.Wrap(errors.ErrState, "already disconnected")
	}
	return nil
}

func (h *staticHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// handleSigner stops signing once its connection is gone.
type handleSigner struct {
	inner  client.Signer
	handle *staticHandle
}

func (s *handleSigner) Address() msigproxy.Address {
	return s.inner.Address()
}

func (s *handleSigner) SignTx(ctx context.Context, call []byte) ([]byte, error) {
	if s.handle.isClosed() {
		return nil, errors.Wrap(errors.ErrConnectionLost, "wallet disconnected")
	}
	return s.inner.SignTx(ctx, call)
}
