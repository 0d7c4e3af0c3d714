package submit

import (
	"fmt"
)

// Kind is the phase of a submission attempt.
type Kind int

const (
	Idle Kind = iota
	// Signing waits for the wallet to sign.
	Signing
	// Validating waits for the network to accept the transaction.
	Validating
	Broadcast
	InBlock
	Finalized
	// Invalid is reached when the network rejected the transaction.
	Invalid
	// Error is reached on any other failure.
	Error
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Signing:
		return "signing"
	case Validating:
		return "validating"
	case Broadcast:
		return "broadcast"
	case InBlock:
		return "inBlock"
	case Finalized:
		return "finalized"
	case Invalid:
		return "invalid"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// State is the progress of the current attempt.
type State struct {
	Kind Kind
	// Attempt identifies the attempt, empty while Idle.
	Attempt string
	// Block is the hash of the including block, set from InBlock on.
	Block string
	// OK tells whether the call dispatched successfully, set from
	// InBlock on.
	OK bool
	// Err describes why the attempt is Invalid, failed with an Error or
	// why the call did not dispatch.
	Err error
}

// Terminal returns true if the attempt ended.
func (s State) Terminal() bool {
	switch s.Kind {
	case Finalized, Invalid, Error:
		return true
	}
	return false
}

// Busy returns true while an attempt is in progress. A busy machine drops
// submit requests.
func (s State) Busy() bool {
	return s.Kind != Idle && !s.Terminal()
}

// Message returns a text describing the state for display.
func (s State) Message() string {
	switch s.Kind {
	case InBlock, Finalized:
		if s.OK {
			return fmt.Sprintf("%s in block %s", s.Kind, s.Block)
		}
		return fmt.Sprintf("%s in block %s, dispatch failed: %s", s.Kind, s.Block, s.Err)
	case Invalid, Error:
		return fmt.Sprintf("%s: %s", s.Kind, s.Err)
	}
	return s.Kind.String()
}
