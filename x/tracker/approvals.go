package tracker

import (
	"fmt"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
)

// HasApproved returns true if the account approved the operation. Accounts
// are compared by their bytes, so any network prefix matches.
func HasApproved(rec *client.MultisigRecord, a msigproxy.Address) bool {
	if rec == nil {
		return false
	}
	id, err := msigproxy.Canonicalize(a)
	if err != nil {
		return false
	}
	for _, approval := range rec.Approvals {
		if approval == id {
			return true
		}
	}
	return false
}

// IsAlreadyApproved returns true if self approved an operation that still
// waits for approvals of other members. Once the threshold is reached the
// call must still be executed, which self may do by approving again.
func IsAlreadyApproved(rec *client.MultisigRecord, self msigproxy.Address, threshold uint16) bool {
	if !HasApproved(rec, self) {
		return false
	}
	return len(rec.Approvals) < int(threshold)
}

// Summarize describes the state of the operation for a member that is
// about to approve it.
func Summarize(rec *client.MultisigRecord, spec msigproxy.CompositeSpec, self msigproxy.Address, prefix uint16) string {
	switch {
	case spec.Threshold == 1:
		return "threshold is 1, the call is executed immediately"
	case rec == nil:
		return fmt.Sprintf("no approvals yet, you will create the operation and %d more will be needed", spec.Threshold-1)
	case IsAlreadyApproved(rec, self, spec.Threshold):
		return fmt.Sprintf("you already approved, %d of %d approvals", len(rec.Approvals), spec.Threshold)
	case len(rec.Approvals)+1 >= int(spec.Threshold):
		return fmt.Sprintf("started by %s, %d of %d approvals, your approval executes the call",
			rec.Depositor.Address(prefix), len(rec.Approvals), spec.Threshold)
	default:
		return fmt.Sprintf("started by %s, %d of %d approvals",
			rec.Depositor.Address(prefix), len(rec.Approvals), spec.Threshold)
	}
}
