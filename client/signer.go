package client

import (
	"context"

	"github.com/iov-one/msigproxy"
)

// AsProxyDelegate returns a signer that authorizes calls on behalf of real
// by dispatching them through inner, which must be a delegate of real.
func AsProxyDelegate(inner Signer, real msigproxy.Address, b Builder) (Signer, error) {
	id, err := msigproxy.Canonicalize(real)
	if err != nil {
		return nil, err
	}
	return &proxySigner{inner: inner, real: real, id: id, builder: b}, nil
}

type proxySigner struct {
	inner   Signer
	real    msigproxy.Address
	id      msigproxy.AccountID
	builder Builder
}

func (s *proxySigner) Address() msigproxy.Address {
	return s.real
}

func (s *proxySigner) SignTx(ctx context.Context, call []byte) ([]byte, error) {
	return s.inner.SignTx(ctx, s.builder.ProxyCall(s.id, call))
}

// Unwrap returns the signer this one delegates to.
func (s *proxySigner) Unwrap() Signer {
	return s.inner
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc struct {
	Addr msigproxy.Address
	Fn   func(ctx context.Context, call []byte) ([]byte, error)
}

func (s SignerFunc) Address() msigproxy.Address {
	return s.Addr
}

func (s SignerFunc) SignTx(ctx context.Context, call []byte) ([]byte, error) {
	return s.Fn(ctx, call)
}

// Leaf returns the innermost signer, the one holding the key.
func Leaf(s Signer) Signer {
	type unwrapper interface {
		Unwrap() Signer
	}
	for {
		u, ok := s.(unwrapper)
		if !ok {
			return s
		}
		s = u.Unwrap()
	}
}
