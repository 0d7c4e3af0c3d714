package app

import (
	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/flow"
	"github.com/iov-one/msigproxy/params"
	"github.com/iov-one/msigproxy/x/extension"
	"github.com/iov-one/msigproxy/x/linked"
	"github.com/iov-one/msigproxy/x/submit"
	"github.com/iov-one/msigproxy/x/utils"
)

// SignerState is the signer of the selected account.
type SignerState struct {
	Account msigproxy.Address
	Path    linked.Path
	// Signer produces transactions dispatching a call as the target. It
	// is nil when Err is set.
	Signer client.Signer
	Err    error
}

// Ready returns true if the selected account can sign.
func (s SignerState) Ready() bool {
	return s.Signer != nil && s.Err == nil
}

func (s *Session) resolveSigner() *flow.Derived[SignerState] {
	return flow.Combine4(s.conn, s.linked, s.walletConn, s.account, s.signerOf)
}

func (s *Session) signerOf(conn flow.Result[*client.Chain], l flow.Result[Linked], w extension.State, account msigproxy.Address) SignerState {
	st := SignerState{Account: account}
	chain := connectedChain(conn)
	switch {
	case account == "":
		st.Err = errors.Wrap(errors.ErrEmpty, "no account selected")
		return st
	case chain == nil:
		st.Err = errors.Wrap(errors.ErrState, "not connected")
		return st
	case l.Pending:
		st.Err = errors.Wrap(errors.ErrState, "resolving accounts")
		return st
	case l.Err != nil:
		st.Err = l.Err
		return st
	}
	path, ok := l.Value.Resolution.Lookup(account)
	if !ok {
		st.Err = errors.Wrapf(errors.ErrNoSignerPath, "%s cannot sign for %s", account, l.Value.Target)
		return st
	}
	st.Path = path
	if w.Status != extension.Connected {
		st.Err = errors.Wrapf(errors.ErrState, "wallet %s", w.Status)
		return st
	}
	leaf, err := w.Handle.Signer(account)
	if err != nil {
		st.Err = err
		return st
	}
	leaf = utils.Chain(leaf, utils.Recovery, utils.Logging)
	para := chain.Para
	signer, err := submit.BuildSigner(path, leaf, para.Builder(), submit.WatcherLookup(para))
	if err != nil {
		st.Err = err
		return st
	}
	st.Signer = signer
	return st
}

// ActionKind tells what submitting does.
type ActionKind int

const (
	// ActionNone means nothing can be submitted.
	ActionNone ActionKind = iota
	// ActionDirect dispatches the call, possibly through proxies.
	ActionDirect
	// ActionMultisig approves the call for a group, other members must
	// approve it too.
	ActionMultisig
)

func (k ActionKind) String() string {
	switch k {
	case ActionDirect:
		return "direct"
	case ActionMultisig:
		return "multisig"
	}
	return "none"
}

// Action is what the selected account does when submitting.
type Action struct {
	Kind ActionKind
	// Multisig is the group approved for, set for ActionMultisig.
	Multisig *linked.Step
	// Link can be shared with the other members of the group, so they
	// open the same call.
	Link string
}

func (s *Session) actionOf(signer SignerState, sel params.Selection) Action {
	if !signer.Ready() {
		return Action{Kind: ActionNone}
	}
	step := signer.Path.Outermost()
	if step == nil {
		return Action{Kind: ActionDirect}
	}
	if step.Spec != nil {
		// The group may have been discovered, not entered.
		sel.Multisig = &params.Multisig{
			Addresses: append([]msigproxy.Address(nil), step.Spec.Members...),
			Threshold: step.Spec.Threshold,
		}
	}
	return Action{
		Kind:     ActionMultisig,
		Multisig: step,
		Link:     params.Link(s.cfg.LinkBase, sel),
	}
}
