/*
Package client declares the boundary between msigproxy and a chain.

Client is implemented by rpcclient for live networks and by msigtest for
tests. Everything a client returns is plain data; nothing here keeps state
between calls, apart from the connection itself.
*/
package client

import (
	"context"
	"sync"

	"github.com/iov-one/msigproxy"
)

// Client is a connection to a single chain.
type Client interface {
	// SS58Prefix returns the network identifier used to display
	// addresses of this chain.
	SS58Prefix() uint16

	// DecodeCall checks that given bytes are a call known by the
	// connected runtime. It fails with ErrInvalidCallData.
	DecodeCall(ctx context.Context, encoded []byte) (*DecodedCall, error)

	// QueryProxies returns all delegates of given account. An account
	// without delegates returns an empty result.
	QueryProxies(ctx context.Context, account msigproxy.AccountID) ([]ProxyRelationship, error)

	// WatchMultisig writes the current state of the multisig operation
	// identified by the group account and call hash to results, followed
	// by every change. The channel is closed when the context is
	// cancelled or the watch failed.
	WatchMultisig(ctx context.Context, id msigproxy.AccountID, callHash msigproxy.Hash, results chan<- MultisigUpdate, options ...Option) error

	// SubmitAndWatch submits a signed transaction. It returns
	// ErrInvalidTx if the transaction failed validation. Otherwise
	// progress is written to events, which is closed after a final event
	// or when the context is cancelled.
	SubmitAndWatch(ctx context.Context, extrinsic []byte, events chan<- SubmissionEvent) error

	// Builder returns the call builder matching the connected runtime.
	Builder() Builder

	// Close releases the connection.
	Close() error
}

// Connector opens connections to the chains of a selection.
type Connector interface {
	Connect(ctx context.Context, sel Selection) (*Chain, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, sel Selection) (*Chain, error)

func (fn ConnectorFunc) Connect(ctx context.Context, sel Selection) (*Chain, error) {
	return fn(ctx, sel)
}

// Chain holds the connections of a selection. Proxy relationships are
// declared on the relay chain, while multisig operations live on, and
// transactions are submitted to, the parachain.
type Chain struct {
	Selection Selection
	Relay     Client
	Para      Client

	closeOnce sync.Once
	closeErr  error
}

// NewChain returns a chain using relay for proxies and para for everything
// else. A nil para uses the relay connection.
func NewChain(sel Selection, relay, para Client) *Chain {
	if para == nil {
		para = relay
	}
	return &Chain{Selection: sel, Relay: relay, Para: para}
}

// Close closes both connections. It is safe to call more than once.
func (c *Chain) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Relay.Close()
		if c.Para != c.Relay {
			if err := c.Para.Close(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

// Signer can authorize a call on behalf of Address. It is an opaque
// capability provided by a wallet and must never be serialized or logged.
type Signer interface {
	Address() msigproxy.Address
	// SignTx returns a signed transaction dispatching call as Address.
	SignTx(ctx context.Context, call []byte) ([]byte, error)
}
