package msigtest

import (
	"context"
	"sync"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
)

// Chain is an in-memory mock implementing client.Client.
//
// Proxies and multisig records are set directly. Every multisig change is
// pushed to the watchers of that operation. Submitted transactions produce
// the events configured in Events.
type Chain struct {
	Prefix uint16
	Calls  client.CallBuilder

	// DecodeErr, when set, fails every DecodeCall. Calls shorter than two
	// bytes never decode.
	DecodeErr error
	// ProxyErr, when set, fails every QueryProxies.
	ProxyErr error
	// WatchErr, when set, fails every WatchMultisig.
	WatchErr error
	// SubmitErr, when set, fails every SubmitAndWatch.
	SubmitErr error
	// Events are emitted for every submitted transaction. When nil, a
	// successful broadcast, inclusion and finalization is emitted.
	Events []client.SubmissionEvent
	// Step, when not nil, must be received from before each event is
	// emitted, which lets tests hold a submission in any state.
	Step chan struct{}

	mu        sync.Mutex
	proxies   map[msigproxy.AccountID][]client.ProxyRelationship
	records   map[recordKey]*client.MultisigRecord
	watchers  map[recordKey][]*watcher
	submitted [][]byte
	closed    bool
}

var _ client.Client = (*Chain)(nil)

type recordKey struct {
	id   msigproxy.AccountID
	hash msigproxy.Hash
}

// NewChain returns an empty chain using given address prefix and the
// default pallet layout.
func NewChain(prefix uint16) *Chain {
	return &Chain{
		Prefix:   prefix,
		Calls:    client.CallBuilder{ProxyPallet: 42, MultisigPallet: 41},
		proxies:  make(map[msigproxy.AccountID][]client.ProxyRelationship),
		records:  make(map[recordKey]*client.MultisigRecord),
		watchers: make(map[recordKey][]*watcher),
	}
}

// SetProxies declares the delegates of real, replacing the previous ones.
func (c *Chain) SetProxies(real msigproxy.AccountID, delegates ...msigproxy.AccountID) {
	rels := make([]client.ProxyRelationship, 0, len(delegates))
	for _, d := range delegates {
		rels = append(rels, client.ProxyRelationship{Proxied: real, Delegate: d, ProxyType: client.ProxyAny})
	}
	c.mu.Lock()
	c.proxies[real] = rels
	c.mu.Unlock()
}

// SetRecord stores the record of an operation and notifies its watchers. A
// nil record removes the operation.
func (c *Chain) SetRecord(id msigproxy.AccountID, hash msigproxy.Hash, rec *client.MultisigRecord) {
	key := recordKey{id: id, hash: hash}
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec == nil {
		delete(c.records, key)
	} else {
		c.records[key] = rec
	}
	for _, w := range c.watchers[key] {
		w.push(client.MultisigUpdate{Record: rec})
	}
}

// Watchers returns the number of active watches of an operation.
func (c *Chain) Watchers(id msigproxy.AccountID, hash msigproxy.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watchers[recordKey{id: id, hash: hash}])
}

// Submitted returns all transactions submitted so far.
func (c *Chain) Submitted() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.submitted))
	copy(out, c.submitted)
	return out
}

// Closed returns true once Close was called.
func (c *Chain) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Chain) SS58Prefix() uint16 {
	return c.Prefix
}

func (c *Chain) DecodeCall(ctx context.Context, encoded []byte) (*client.DecodedCall, error) {
	if c.DecodeErr != nil {
		return nil, c.DecodeErr
	}
	if len(encoded) < 2 {
		return nil, errors.Wrap(errors.ErrInvalidCallData, "too short")
	}
	return &client.DecodedCall{
		PalletIndex: encoded[0],
		CallIndex:   encoded[1],
		Args:        append([]byte(nil), encoded[2:]...),
	}, nil
}

func (c *Chain) QueryProxies(ctx context.Context, account msigproxy.AccountID) ([]client.ProxyRelationship, error) {
	if c.ProxyErr != nil {
		return nil, c.ProxyErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rels := c.proxies[account]
	out := make([]client.ProxyRelationship, len(rels))
	copy(out, rels)
	return out, nil
}

func (c *Chain) WatchMultisig(ctx context.Context, id msigproxy.AccountID, callHash msigproxy.Hash, results chan<- client.MultisigUpdate, options ...client.Option) error {
	if c.WatchErr != nil {
		return c.WatchErr
	}
	key := recordKey{id: id, hash: callHash}
	w := &watcher{wake: make(chan struct{}, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.Wrap(errors.ErrConnectionLost, "closed")
	}
	w.push(client.MultisigUpdate{Record: c.records[key]})
	c.watchers[key] = append(c.watchers[key], w)
	c.mu.Unlock()

	go func() {
		defer close(results)
		defer c.unwatch(key, w)
		for {
			for _, u := range w.take() {
				select {
				case results <- u:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-w.wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (c *Chain) unwatch(key recordKey, w *watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws := c.watchers[key]
	for i, x := range ws {
		if x == w {
			c.watchers[key] = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}
	if len(c.watchers[key]) == 0 {
		delete(c.watchers, key)
	}
}

func (c *Chain) SubmitAndWatch(ctx context.Context, extrinsic []byte, events chan<- client.SubmissionEvent) error {
	c.mu.Lock()
	c.submitted = append(c.submitted, append([]byte(nil), extrinsic...))
	c.mu.Unlock()
	if c.SubmitErr != nil {
		return c.SubmitErr
	}
	script := c.Events
	if script == nil {
		script = []client.SubmissionEvent{
			{Kind: client.EventBroadcast},
			{Kind: client.EventInBlock, Block: "0x01", OK: true},
			{Kind: client.EventFinalized, Block: "0x01", OK: true},
		}
	}
	go func() {
		defer close(events)
		for _, ev := range script {
			if c.Step != nil {
				select {
				case <-c.Step:
				case <-ctx.Done():
					return
				}
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (c *Chain) Builder() client.Builder {
	return c.Calls
}

func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// watcher queues updates of a single watch, so that setting a record never
// blocks on a slow reader.
type watcher struct {
	mu    sync.Mutex
	queue []client.MultisigUpdate
	wake  chan struct{}
}

func (w *watcher) push(u client.MultisigUpdate) {
	w.mu.Lock()
	w.queue = append(w.queue, u)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) take() []client.MultisigUpdate {
	w.mu.Lock()
	defer w.mu.Unlock()
	q := w.queue
	w.queue = nil
	return q
}

// Connector is a mock implementing client.Connector. It returns a chain
// registered for the relay and parachain names of a selection.
type Connector struct {
	// Chains maps relay or parachain names, or endpoints, to chains.
	Chains map[string]*Chain
	// Err, when set, fails every Connect.
	Err error

	mu    sync.Mutex
	calls int
}

var _ client.Connector = (*Connector)(nil)

func (c *Connector) Connect(ctx context.Context, sel client.Selection) (*client.Chain, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	relay, ok := c.Chains[sel.Relay]
	if !ok {
		return nil, errors.Wrapf(errors.ErrConnectionRejected, "unknown chain %q", sel.Relay)
	}
	var para client.Client
	if sel.Para != "" {
		p, ok := c.Chains[sel.Para]
		if !ok {
			return nil, errors.Wrapf(errors.ErrConnectionRejected, "unknown chain %q", sel.Para)
		}
		para = p
	}
	return client.NewChain(sel, relay, para), nil
}

// Calls returns how many times Connect was called.
func (c *Connector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
