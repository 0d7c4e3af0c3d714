/*
Package utils contains decorators that wrap a client.Signer with behavior
shared by every wallet: logging and panic recovery.

	signer = utils.Chain(signer, utils.Recovery, utils.Logging)

Decorators keep the wrapped signer reachable through Unwrap, so
client.Leaf still finds the signer holding the key.
*/
package utils

import (
	"context"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
)

// Decorator wraps a signer.
type Decorator func(client.Signer) client.Signer

// Chain applies decorators to inner. The first decorator is the innermost
// one, so the last one sees a call first.
func Chain(inner client.Signer, decorators ...Decorator) client.Signer {
	s := inner
	for _, d := range decorators {
		s = d(s)
	}
	return s
}

// decorated forwards everything but SignTx to the wrapped signer.
type decorated struct {
	inner client.Signer
	sign  func(ctx context.Context, call []byte) ([]byte, error)
}

func (d *decorated) Address() msigproxy.Address {
	return d.inner.Address()
}

func (d *decorated) SignTx(ctx context.Context, call []byte) ([]byte, error) {
	return d.sign(ctx, call)
}

// Unwrap returns the signer this one decorates.
func (d *decorated) Unwrap() client.Signer {
	return d.inner
}
