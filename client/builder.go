package client

import (
	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/scale"
)

// Builder wraps calls into the proxy and multisig dispatchers of a runtime.
type Builder interface {
	// ProxyCall dispatches call as real. The signer must be a delegate
	// of real.
	ProxyCall(real msigproxy.AccountID, call []byte) []byte

	// AsMultiCall approves call as a member of a group account. When is
	// nil for the first approval and the timepoint of the pending
	// operation otherwise. The call executes with the last approval.
	AsMultiCall(threshold uint16, others []msigproxy.AccountID, when *Timepoint, call []byte, maxWeight Weight) []byte

	// ApproveAsMultiCall approves an operation by its call hash only.
	ApproveAsMultiCall(threshold uint16, others []msigproxy.AccountID, when *Timepoint, callHash msigproxy.Hash, maxWeight Weight) []byte

	// AsMultiThreshold1Call dispatches call as a group account that
	// requires a single approval.
	AsMultiThreshold1Call(others []msigproxy.AccountID, call []byte) []byte
}

// Call indexes within the pallets. These are stable across runtimes.
const (
	proxyCallProxy = 0

	multisigCallAsMultiThreshold1 = 0
	multisigCallAsMulti           = 1
	multisigCallApproveAsMulti    = 2
)

// CallBuilder builds calls for a runtime with the proxy and multisig
// pallets at given indexes.
type CallBuilder struct {
	ProxyPallet    uint8
	MultisigPallet uint8
}

var _ Builder = CallBuilder{}

// DefaultWeight is used as maximum weight for the final approval when no
// estimate is available.
var DefaultWeight = Weight{RefTime: 10_000_000_000, ProofSize: 1_000_000}

func (b CallBuilder) ProxyCall(real msigproxy.AccountID, call []byte) []byte {
	out := make([]byte, 0, 2+1+msigproxy.AccountIDLength+1+len(call))
	out = append(out, b.ProxyPallet, proxyCallProxy)
	// MultiAddress::Id
	out = append(out, 0x00)
	out = append(out, real[:]...)
	// force_proxy_type: None
	out = append(out, 0x00)
	return append(out, call...)
}

func (b CallBuilder) AsMultiCall(threshold uint16, others []msigproxy.AccountID, when *Timepoint, call []byte, maxWeight Weight) []byte {
	out := []byte{b.MultisigPallet, multisigCallAsMulti}
	out = appendMultisigHead(out, threshold, others, when)
	out = append(out, call...)
	return appendWeight(out, maxWeight)
}

func (b CallBuilder) ApproveAsMultiCall(threshold uint16, others []msigproxy.AccountID, when *Timepoint, callHash msigproxy.Hash, maxWeight Weight) []byte {
	out := []byte{b.MultisigPallet, multisigCallApproveAsMulti}
	out = appendMultisigHead(out, threshold, others, when)
	out = append(out, callHash[:]...)
	return appendWeight(out, maxWeight)
}

func (b CallBuilder) AsMultiThreshold1Call(others []msigproxy.AccountID, call []byte) []byte {
	out := []byte{b.MultisigPallet, multisigCallAsMultiThreshold1}
	out = appendAccounts(out, others)
	return append(out, call...)
}

func appendMultisigHead(out []byte, threshold uint16, others []msigproxy.AccountID, when *Timepoint) []byte {
	out = scale.AppendU16(out, threshold)
	out = appendAccounts(out, others)
	if when == nil {
		return append(out, 0x00)
	}
	out = append(out, 0x01)
	out = scale.AppendU32(out, when.Height)
	return scale.AppendU32(out, when.Index)
}

func appendAccounts(out []byte, ids []msigproxy.AccountID) []byte {
	out = scale.AppendCompact(out, uint64(len(ids)))
	for _, id := range ids {
		out = append(out, id[:]...)
	}
	return out
}

func appendWeight(out []byte, w Weight) []byte {
	out = scale.AppendCompact(out, w.RefTime)
	return scale.AppendCompact(out, w.ProofSize)
}
