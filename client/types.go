package client

import (
	"fmt"
	"math/big"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/errors"
)

// ChainType tells how a chain is reached.
type ChainType string

const (
	// ChainPreset selects a well known network by name. Endpoints are
	// taken from the configured presets.
	ChainPreset ChainType = "sm"
	// ChainRPC selects a network by explicit websocket RPC endpoints.
	ChainRPC ChainType = "ws"
)

// Selection is the chain the user works with. Relay holds the relay chain
// (preset name or endpoint), Para the parachain where the multisig and the
// submission happen. An empty Para uses the relay chain for everything.
type Selection struct {
	Type  ChainType `json:"type"`
	Relay string    `json:"relay"`
	Para  string    `json:"para"`
}

// DefaultSelection is used when nothing was persisted.
var DefaultSelection = Selection{Type: ChainPreset, Relay: "kusama", Para: "kusamaAh"}

// Validate returns an error if the selection cannot be connected to.
func (s Selection) Validate() error {
	var errs error
	switch s.Type {
	case ChainPreset, ChainRPC:
	default:
		errs = errors.AppendField(errs, "Type", errors.Wrapf(errors.ErrInput, "unknown chain type %q", s.Type))
	}
	if s.Relay == "" {
		errs = errors.AppendField(errs, "Relay", errors.ErrEmpty)
	}
	return errs
}

// ProxyType is the runtime specific kind of a proxy relationship. Only the
// index is known without runtime metadata.
type ProxyType uint8

// ProxyAny is the unrestricted proxy type on all known runtimes.
const ProxyAny ProxyType = 0

func (t ProxyType) String() string {
	if t == ProxyAny {
		return "Any"
	}
	return fmt.Sprintf("ProxyType(%d)", uint8(t))
}

// ProxyRelationship declares that Delegate may act on behalf of Proxied.
type ProxyRelationship struct {
	Proxied   msigproxy.AccountID
	Delegate  msigproxy.AccountID
	ProxyType ProxyType
	Delay     uint32
}

// Timepoint identifies the extrinsic that opened a multisig operation.
type Timepoint struct {
	Height uint32 `json:"height"`
	Index  uint32 `json:"index"`
}

// MultisigRecord is the on-chain state of a pending multisig operation. It
// exists from the first approval until the operation is executed or
// cancelled.
type MultisigRecord struct {
	When      Timepoint
	Deposit   *big.Int
	Depositor msigproxy.AccountID
	Approvals []msigproxy.AccountID
}

// MultisigUpdate is a single notification of a multisig watch. A nil Record
// means that no operation is pending. Err is set when the watch failed, no
// further updates follow.
type MultisigUpdate struct {
	Record *MultisigRecord
	Err    error
}

// Weight is the maximum execution weight of a dispatched call.
type Weight struct {
	RefTime   uint64
	ProofSize uint64
}

// EventKind is the progress of a submitted transaction.
type EventKind int

const (
	// EventBroadcast is emitted once the transaction passed validation
	// and was propagated to the network.
	EventBroadcast EventKind = iota
	// EventInBlock is emitted when the transaction was included in a
	// block.
	EventInBlock
	// EventFinalized is emitted when the including block was finalized.
	// No event follows.
	EventFinalized
	// EventInvalid is emitted when the network drops the transaction.
	// No event follows.
	EventInvalid
)

func (k EventKind) String() string {
	switch k {
	case EventBroadcast:
		return "broadcast"
	case EventInBlock:
		return "inBlock"
	case EventFinalized:
		return "finalized"
	case EventInvalid:
		return "invalid"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// SubmissionEvent is a single progress notification of a submitted
// transaction. OK tells whether the call dispatched successfully; Reason
// describes the failure when it did not.
type SubmissionEvent struct {
	Kind   EventKind
	Block  string
	OK     bool
	Reason string
}

// DecodedCall is the shallow view of a call that can be obtained without
// runtime metadata.
type DecodedCall struct {
	PalletIndex uint8
	CallIndex   uint8
	Pallet      string
	Args        []byte
}

func (c DecodedCall) String() string {
	name := c.Pallet
	if name == "" {
		name = fmt.Sprintf("pallet %d", c.PalletIndex)
	}
	return fmt.Sprintf("%s call %d (%d bytes of arguments)", name, c.CallIndex, len(c.Args))
}

// Option represents an option supplied to subscription
type Option interface {
	isOption()
}

// OptionCapacity is used for setting channel capacity for subscriptions
type OptionCapacity struct {
	Capacity int
}

func (OptionCapacity) isOption() {
	// just satisfies the interface
}

// Capacity returns the requested channel capacity, or def.
func Capacity(options []Option, def int) int {
	for _, o := range options {
		if c, ok := o.(OptionCapacity); ok {
			return c.Capacity
		}
	}
	return def
}
