package app

import (
	"context"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/flow"
	"github.com/iov-one/msigproxy/params"
	"github.com/iov-one/msigproxy/x/extension"
	"github.com/iov-one/msigproxy/x/linked"
)

// NotDelegateWarning is shown when the declared multisig cannot act for the
// selected proxy.
const NotDelegateWarning = "Multisig is not any of the signers of this proxy"

// MultisigSpec is the group declared by the user.
type MultisigSpec struct {
	// Declared is false when the user did not enter any group.
	Declared bool
	Spec     msigproxy.CompositeSpec
	// ID is set for valid declarations only.
	ID msigproxy.AccountID
	// Err lists every problem of an invalid declaration.
	Err error
}

// Valid returns true if the declaration derives a group account.
func (m MultisigSpec) Valid() bool {
	return m.Declared && m.Err == nil
}

func declaredSpec(m *params.Multisig) MultisigSpec {
	if m == nil {
		return MultisigSpec{}
	}
	out := MultisigSpec{Declared: true, Spec: m.Spec()}
	out.ID, out.Err = out.Spec.ID()
	return out
}

// Linked is the tree of accounts allowed to sign for the target.
type Linked struct {
	// Target is the proxy if one was selected, the declared group
	// otherwise.
	Target     msigproxy.Address
	Tree       *linked.Tree
	Resolution *linked.Resolution
	// Warning is a non fatal problem of the selection.
	Warning string
}

type linkInput struct {
	chain *client.Chain
	proxy msigproxy.Address
	spec  MultisigSpec
}

func sameLinkInput(a, b linkInput) bool {
	return a.chain == b.chain &&
		a.proxy == b.proxy &&
		a.spec.Valid() == b.spec.Valid() &&
		a.spec.ID == b.spec.ID
}

// resolveLinked discovers the account tree every time the connection, the
// proxy or the declared group change. Proxies are read from the relay chain.
func (s *Session) resolveLinked() *flow.Derived[flow.Result[Linked]] {
	inputs := flow.Combine3(s.conn, s.proxy, s.spec, func(r flow.Result[*client.Chain], proxy msigproxy.Address, spec MultisigSpec) linkInput {
		return linkInput{chain: connectedChain(r), proxy: proxy, spec: spec}
	})
	return flow.AsyncMap(s.loop, flow.Distinct(inputs, sameLinkInput), s.link)
}

func (s *Session) link(ctx context.Context, in linkInput) (Linked, error) {
	if in.chain == nil {
		return Linked{}, errors.Wrap(errors.ErrState, "not connected")
	}
	target := in.proxy
	if target == "" {
		if !in.spec.Valid() {
			return Linked{}, errors.Wrap(errors.ErrEmpty, "neither a proxy nor a multisig selected")
		}
		target = in.spec.ID.Address(in.chain.Para.SS58Prefix())
	}
	src := linked.NewChainSource(in.chain.Relay, s.cfg.Index, s.logger)
	if in.spec.Valid() {
		var err error
		if src, err = src.WithManual(in.spec.Spec); err != nil {
			return Linked{}, err
		}
	}
	tree, err := linked.Build(ctx, target, src, linked.Options{MaxDepth: s.cfg.MaxDepth})
	if err != nil {
		return Linked{}, errors.Wrapf(err, "discover %s", target)
	}
	res, err := linked.Resolve(tree)
	if err != nil {
		return Linked{}, err
	}
	out := Linked{Target: target, Tree: tree, Resolution: res}
	if in.proxy != "" && in.spec.Valid() && !isDelegate(tree, in.spec.ID) {
		out.Warning = NotDelegateWarning
	}
	s.logger.Debug("accounts resolved", "target", target, "accounts", len(res.Accounts()))
	return out, nil
}

// isDelegate returns true if id is a direct delegate of the root.
func isDelegate(t *linked.Tree, id msigproxy.AccountID) bool {
	root := t.Nodes[t.Root]
	if root.Kind != linked.KindProxy {
		return false
	}
	for _, c := range root.Children {
		if t.Nodes[c].ID == id {
			return true
		}
	}
	return false
}

// eligibleAccounts keeps the accounts that have a path to the target, in
// the order the wallet lists them.
func eligibleAccounts(accounts []extension.Account, l flow.Result[Linked]) []extension.Account {
	if !l.Ready() || l.Value.Resolution == nil {
		return nil
	}
	var out []extension.Account
	for _, a := range accounts {
		if _, ok := l.Value.Resolution.Lookup(a.Address); ok {
			out = append(out, a)
		}
	}
	return out
}
