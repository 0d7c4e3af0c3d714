package app

import (
	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/flow"
	"github.com/iov-one/msigproxy/x/calldata"
	"github.com/iov-one/msigproxy/x/linked"
	"github.com/iov-one/msigproxy/x/submit"
	"github.com/iov-one/msigproxy/x/tracker"
)

// Tracking is the live state of the multisig operation the selected
// account approves.
type Tracking struct {
	// Active is false when the call is not approved through a group.
	Active   bool
	Multisig msigproxy.AccountID
	// CallHash identifies the operation. It is the hash of the call as
	// dispatched by the group, so proxies between the target and the
	// group are part of it.
	CallHash        msigproxy.Hash
	Status          tracker.Status
	AlreadyApproved bool
	Summary         string
}

type trackTarget struct {
	chain *client.Chain
	step  *linked.Step
	self  msigproxy.Address
	hash  msigproxy.Hash
}

func sameTrackTarget(a, b trackTarget) bool {
	if a.chain != b.chain || a.self != b.self || a.hash != b.hash {
		return false
	}
	if a.step == nil || b.step == nil {
		return a.step == b.step
	}
	return a.step.Account == b.step.Account
}

// track watches the operation of the group closest to the target on the
// path of the selected account. The watch is replaced only when the group,
// the call or the member change.
func (s *Session) track() *flow.Derived[Tracking] {
	targets := flow.Combine3(s.conn, s.call, s.signer, trackTargetOf)
	return flow.Switch(flow.Distinct(targets, sameTrackTarget), func(t trackTarget) flow.Cell[Tracking] {
		if t.step == nil {
			return flow.Const(Tracking{})
		}
		spec := *t.step.Spec
		prefix := t.chain.Para.SS58Prefix()
		status := tracker.Track(s.loop, t.chain.Para, t.step.Account, t.hash, tracker.Options{
			Logger:  s.logger,
			Metrics: s.trackerMetrics,
		})
		return flow.Map(status, func(st tracker.Status) Tracking {
			out := Tracking{
				Active:   true,
				Multisig: t.step.Account,
				CallHash: t.hash,
				Status:   st,
			}
			if st.Loaded && st.Err == nil {
				out.AlreadyApproved = tracker.IsAlreadyApproved(st.Record, t.self, spec.Threshold)
				out.Summary = tracker.Summarize(st.Record, spec, t.self, prefix)
			}
			return out
		})
	})
}

// trackTargetOf finds the outermost group of the signer path. Only proxies
// may stand between it and the target, since the call a nested group sees
// depends on the state of the groups above it.
func trackTargetOf(conn flow.Result[*client.Chain], call calldata.Call, signer SignerState) trackTarget {
	chain := connectedChain(conn)
	if chain == nil || !call.Ready() || !signer.Ready() {
		return trackTarget{}
	}
	steps := signer.Path.Steps
	inner := call.Encoded
	b := chain.Para.Builder()
	for i := range steps {
		step := &steps[i]
		if step.Kind == linked.KindProxy {
			inner = b.ProxyCall(step.Account, inner)
			continue
		}
		if step.Spec == nil {
			return trackTarget{}
		}
		// The member approving for the group is the next account on the
		// path, or the signer itself.
		self := client.Leaf(signer.Signer).Address()
		if i+1 < len(steps) {
			self = steps[i+1].Account.Address(chain.Para.SS58Prefix())
		}
		return trackTarget{
			chain: chain,
			step:  step,
			self:  self,
			hash:  msigproxy.CallHash(inner),
		}
	}
	return trackTarget{}
}

func requestOf(conn flow.Result[*client.Chain], call calldata.Call, signer SignerState) submit.Request {
	req := submit.Request{Signer: signer.Signer}
	if call.Ready() {
		req.Call = call.Encoded
	}
	if chain := connectedChain(conn); chain != nil {
		req.Submitter = chain.Para
	}
	return req
}
