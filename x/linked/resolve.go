package linked

import (
	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
)

// Step is a single level between the root and a signing account.
type Step struct {
	Kind Kind
	// Account of the proxy or group that the signature is made for.
	Account msigproxy.AccountID
	// Spec is set for multisig steps.
	Spec *msigproxy.CompositeSpec
}

// Path describes how an account in the tree signs for the root.
type Path struct {
	// Steps are ordered from the root to the signing account. An empty
	// path means the account is the root itself.
	Steps []Step
}

// Ops returns the proxy steps of the path, the only ones that wrap a
// signer. Each op is the proxied account the signer acts as a delegate of.
func (p Path) Ops() []msigproxy.AccountID {
	var ops []msigproxy.AccountID
	for _, s := range p.Steps {
		if s.Kind == KindProxy {
			ops = append(ops, s.Account)
		}
	}
	return ops
}

// Outermost returns the multisig step closest to the root, or nil if no
// group is on the path. Its members are the ones that see the call being
// approved, whatever groups stand below it.
func (p Path) Outermost() *Step {
	for i := range p.Steps {
		if p.Steps[i].Kind == KindMultisig {
			return &p.Steps[i]
		}
	}
	return nil
}

// Resolution holds a path for every account of a tree.
type Resolution struct {
	Root  msigproxy.AccountID
	paths map[msigproxy.AccountID]Path
	// order keeps accounts in the order they were found.
	order []msigproxy.AccountID
}

// Lookup returns the path of given address. Addresses are compared by
// their account bytes.
func (r *Resolution) Lookup(a msigproxy.Address) (Path, bool) {
	id, err := msigproxy.Canonicalize(a)
	if err != nil {
		return Path{}, false
	}
	p, ok := r.paths[id]
	return p, ok
}

// Accounts returns all accounts that can sign for the root, in the order
// they were found.
func (r *Resolution) Accounts() []msigproxy.AccountID {
	out := make([]msigproxy.AccountID, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve computes the path of every account in the tree, searching depth
// first in the order of node children. An account reachable in more than
// one way keeps the first path found, so an account is always resolved as
// itself before anything linked below it. Resolve fails with
// ErrResolutionTooDeep if a node is found deeper than the tree allows.
func Resolve(t *Tree) (*Resolution, error) {
	if t == nil || len(t.Nodes) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "tree")
	}
	r := resolver{
		tree: t,
		max:  t.maxDepth(),
		res: &Resolution{
			Root:  t.RootID(),
			paths: make(map[msigproxy.AccountID]Path),
		},
		done: make(map[int]bool),
	}
	if err := r.walk(t.Root, nil, 1); err != nil {
		return nil, err
	}
	return r.res, nil
}

type resolver struct {
	tree *Tree
	max  int
	res  *Resolution
	// done marks nodes whose subtree was fully walked. A node on the
	// current path is not done, so a cycle keeps descending until the
	// depth limit.
	done map[int]bool
}

func (r *resolver) walk(i int, steps []Step, depth int) error {
	if depth > r.max {
		return errors.Wrapf(errors.ErrResolutionTooDeep, "more than %d levels", r.max)
	}
	if i < 0 || i >= len(r.tree.Nodes) {
		return errors.Wrapf(errors.ErrInput, "no node %d", i)
	}
	n := r.tree.Nodes[i]
	if _, ok := r.res.paths[n.ID]; !ok {
		r.res.paths[n.ID] = Path{Steps: steps}
		r.res.order = append(r.res.order, n.ID)
	}
	if r.done[i] {
		return nil
	}

	var step Step
	switch n.Kind {
	case KindLeaf:
		r.done[i] = true
		return nil
	case KindProxy:
		step = Step{Kind: KindProxy, Account: n.ID}
	case KindMultisig:
		step = Step{Kind: KindMultisig, Account: n.ID, Spec: n.Spec}
	default:
		return errors.Wrapf(errors.ErrType, "node kind %d", n.Kind)
	}

	// Full slice expression, so siblings never share a backing array.
	next := append(steps[:len(steps):len(steps)], step)
	for _, c := range n.Children {
		if err := r.walk(c, next, depth+1); err != nil {
			return err
		}
	}
	r.done[i] = true
	return nil
}

// ResolveSigner folds the proxy steps of the path of selected around leaf
// and returns the result. Multisig steps are skipped, so the signer only
// reaches the root when no group is on the path. Use submit.BuildSigner to
// sign extrinsics for any path. leaf must sign as selected. Proxy steps are
// applied right to left, so the outermost wrap is the one closest to the
// root. It fails with ErrNoSignerPath if selected is not in the tree.
func ResolveSigner(res *Resolution, selected msigproxy.Address, leaf client.Signer, b client.Builder) (client.Signer, error) {
	if res == nil || leaf == nil {
		return nil, errors.Wrap(errors.ErrNoSignerPath, "nothing resolved")
	}
	if !msigproxy.AddressesEquivalent(selected, leaf.Address()) {
		return nil, errors.Wrapf(errors.ErrInput, "signer is for %s, not %s", leaf.Address(), selected)
	}
	path, ok := res.Lookup(selected)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNoSignerPath, "%s is not linked", selected)
	}
	prefix := addressPrefix(leaf.Address())
	ops := path.Ops()
	signer := leaf
	for i := len(ops) - 1; i >= 0; i-- {
		s, err := client.AsProxyDelegate(signer, ops[i].Address(prefix), b)
		if err != nil {
			return nil, err
		}
		signer = s
	}
	return signer, nil
}

// addressPrefix returns the network prefix a signer uses, so wrapped
// signers report addresses of the same network.
func addressPrefix(a msigproxy.Address) uint16 {
	if _, prefix, err := msigproxy.DecodeSS58(a); err == nil {
		return prefix
	}
	return msigproxy.GenericPrefix
}
