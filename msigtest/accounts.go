package msigtest

import (
	"context"
	"sync"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/errors"
)

// Account returns an account whose bytes are all set to b. Use distinct
// values to get distinct accounts.
func Account(b byte) msigproxy.AccountID {
	var id msigproxy.AccountID
	for i := range id {
		id[i] = b
	}
	return id
}

// Address returns the generic address of Account(b).
func Address(b byte) msigproxy.Address {
	return Account(b).Address(msigproxy.GenericPrefix)
}

// Spec returns a valid group declaration of given members.
func Spec(threshold uint16, members ...byte) msigproxy.CompositeSpec {
	spec := msigproxy.CompositeSpec{Threshold: threshold}
	for _, m := range members {
		spec.Members = append(spec.Members, Address(m))
	}
	return spec
}

// SpecID returns the group account of a declaration, panicking if it is
// invalid.
func SpecID(spec msigproxy.CompositeSpec) msigproxy.AccountID {
	id, err := spec.ID()
	if err != nil {
		panic(err)
	}
	return id
}

// Signer is a mock implementing client.Signer. Signing returns the call
// prefixed with "sig:".
type Signer struct {
	Addr msigproxy.Address
	// Err, when set, is returned by every SignTx call.
	Err error

	mu     sync.Mutex
	signed [][]byte
}

// NewSigner returns a signer for Address(b).
func NewSigner(b byte) *Signer {
	return &Signer{Addr: Address(b)}
}

func (s *Signer) Address() msigproxy.Address {
	return s.Addr
}

func (s *Signer) SignTx(ctx context.Context, call []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrTimeout, err.Error())
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	s.signed = append(s.signed, append([]byte(nil), call...))
	s.mu.Unlock()
	return append([]byte("sig:"), call...), nil
}

// Signed returns all calls signed so far.
func (s *Signer) Signed() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.signed))
	copy(out, s.signed)
	return out
}
