package submit

import (
	"context"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/x/linked"
	"github.com/iov-one/msigproxy/x/tracker"
)

// RecordLookup returns the pending record of a multisig operation, or nil
// if nobody approved it yet.
type RecordLookup func(ctx context.Context, id msigproxy.AccountID, callHash msigproxy.Hash) (*client.MultisigRecord, error)

// WatcherLookup returns a RecordLookup reading the current record from a
// chain.
func WatcherLookup(w tracker.Watcher) RecordLookup {
	return func(ctx context.Context, id msigproxy.AccountID, callHash msigproxy.Hash) (*client.MultisigRecord, error) {
		return tracker.Fetch(ctx, w, id, callHash)
	}
}

// AsMultisigMember returns a signer approving calls for the group declared
// by spec, using inner, which must sign as one of the members. The record of
// the operation is looked up when signing, so that the approval refers to
// the operation other members already started.
func AsMultisigMember(inner client.Signer, spec msigproxy.CompositeSpec, b client.Builder, lookup RecordLookup) (client.Signer, error) {
	id, err := spec.ID()
	if err != nil {
		return nil, err
	}
	others, err := spec.OtherSignatories(inner.Address())
	if err != nil {
		return nil, errors.Wrap(err, "signer")
	}
	prefix := msigproxy.GenericPrefix
	if _, p, err := msigproxy.DecodeSS58(inner.Address()); err == nil {
		prefix = p
	}
	return &multisigSigner{
		inner:   inner,
		spec:    spec,
		id:      id,
		address: id.Address(prefix),
		others:  others,
		builder: b,
		lookup:  lookup,
	}, nil
}

type multisigSigner struct {
	inner   client.Signer
	spec    msigproxy.CompositeSpec
	id      msigproxy.AccountID
	address msigproxy.Address
	others  []msigproxy.AccountID
	builder client.Builder
	lookup  RecordLookup
}

func (s *multisigSigner) Address() msigproxy.Address {
	return s.address
}

func (s *multisigSigner) SignTx(ctx context.Context, call []byte) ([]byte, error) {
	if s.spec.Threshold == 1 {
		return s.inner.SignTx(ctx, s.builder.AsMultiThreshold1Call(s.others, call))
	}
	var when *client.Timepoint
	if s.lookup != nil {
		rec, err := s.lookup(ctx, s.id, msigproxy.CallHash(call))
		if err != nil {
			return nil, errors.Wrap(err, "multisig record")
		}
		if tracker.IsAlreadyApproved(rec, s.inner.Address(), s.spec.Threshold) {
			return nil, errors.Wrapf(errors.ErrInvalidTx, "%s already approved", s.inner.Address())
		}
		if rec != nil {
			tp := rec.When
			when = &tp
		}
	}
	wrapped := s.builder.AsMultiCall(s.spec.Threshold, s.others, when, call, client.DefaultWeight)
	return s.inner.SignTx(ctx, wrapped)
}

// Unwrap returns the member signer.
func (s *multisigSigner) Unwrap() client.Signer {
	return s.inner
}

// BuildSigner returns a signer for the root of a resolved path. Steps are
// applied right to left, so the signature of leaf is wrapped first by the
// step closest to it.
func BuildSigner(path linked.Path, leaf client.Signer, b client.Builder, lookup RecordLookup) (client.Signer, error) {
	prefix := msigproxy.GenericPrefix
	if _, p, err := msigproxy.DecodeSS58(leaf.Address()); err == nil {
		prefix = p
	}
	signer := leaf
	for i := len(path.Steps) - 1; i >= 0; i-- {
		step := path.Steps[i]
		var err error
		switch step.Kind {
		case linked.KindProxy:
			signer, err = client.AsProxyDelegate(signer, step.Account.Address(prefix), b)
		case linked.KindMultisig:
			if step.Spec == nil {
				return nil, errors.Wrapf(errors.ErrState, "no declaration of multisig %s", step.Account)
			}
			signer, err = AsMultisigMember(signer, *step.Spec, b, lookup)
		default:
			return nil, errors.Wrapf(errors.ErrType, "step kind %s", step.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	return signer, nil
}
