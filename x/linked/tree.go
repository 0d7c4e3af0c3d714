package linked

import (
	"context"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/errors"
)

// DefaultMaxDepth is the number of tree levels, root included, that can be
// discovered and resolved.
const DefaultMaxDepth = 8

// Kind tells how the account of a node is controlled.
type Kind int

const (
	// KindLeaf is an account controlled by its own key.
	KindLeaf Kind = iota
	// KindMultisig is a group account, its children are the members.
	KindMultisig
	// KindProxy is a proxied account, its children are the delegates.
	KindProxy
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindMultisig:
		return "multisig"
	case KindProxy:
		return "proxy"
	}
	return "unknown"
}

// Node is a single account of a tree. Children are indexes into the node
// list of the tree.
type Node struct {
	ID       msigproxy.AccountID
	Kind     Kind
	Spec     *msigproxy.CompositeSpec
	Children []int
}

// Tree is the graph of accounts linked to Root. The same account is
// represented by a single node, no matter how many times it is linked.
type Tree struct {
	Nodes    []Node
	Root     int
	MaxDepth int
}

// RootID returns the account the tree was built for.
func (t *Tree) RootID() msigproxy.AccountID {
	return t.Nodes[t.Root].ID
}

// Depth returns the number of levels of the tree. A cyclic tree is reported
// as deeper than any limit.
func (t *Tree) Depth() int {
	onPath := make(map[int]bool)
	var depth func(i, limit int) int
	depth = func(i, limit int) int {
		if limit == 0 || onPath[i] {
			return 1
		}
		onPath[i] = true
		defer delete(onPath, i)
		max := 0
		for _, c := range t.Nodes[i].Children {
			if d := depth(c, limit-1); d > max {
				max = d
			}
		}
		return max + 1
	}
	return depth(t.Root, t.maxDepth()+1)
}

func (t *Tree) maxDepth() int {
	if t.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return t.MaxDepth
}

// Source answers how an account is controlled.
type Source interface {
	// Delegates returns the delegates of a proxied account in a stable
	// order. An account that is not proxied has none.
	Delegates(ctx context.Context, id msigproxy.AccountID) ([]msigproxy.AccountID, error)

	// Multisig returns the declaration of a group account, or nil if
	// the account is not known to be one.
	Multisig(ctx context.Context, id msigproxy.AccountID) (*msigproxy.CompositeSpec, error)
}

// Options configures Build.
type Options struct {
	// MaxDepth limits the number of levels. Zero means DefaultMaxDepth.
	MaxDepth int
}

// Build discovers the accounts linked to target. An account with
// delegates is a proxy node, otherwise an account with a known declaration
// is a multisig node. Build fails with ErrResolutionTooDeep if the tree has
// more levels than allowed, which is also how cycles end.
func Build(ctx context.Context, target msigproxy.Address, src Source, opts Options) (*Tree, error) {
	id, err := msigproxy.Canonicalize(target)
	if err != nil {
		return nil, errors.Wrap(err, "target")
	}
	b := builder{
		src:   src,
		tree:  &Tree{MaxDepth: opts.MaxDepth},
		built: make(map[msigproxy.AccountID]int),
	}
	root, err := b.visit(ctx, id, 1)
	if err != nil {
		return nil, err
	}
	b.tree.Root = root
	return b.tree, nil
}

type builder struct {
	src  Source
	tree *Tree
	// built maps accounts to their completed nodes.
	built map[msigproxy.AccountID]int
	// height of each completed node, to check reuse at a greater depth.
	height []int
}

func (b *builder) visit(ctx context.Context, id msigproxy.AccountID, depth int) (int, error) {
	max := b.tree.maxDepth()
	if depth > max {
		return 0, errors.Wrapf(errors.ErrResolutionTooDeep, "more than %d levels at %s", max, id)
	}
	if i, ok := b.built[id]; ok {
		if depth+b.height[i]-1 > max {
			return 0, errors.Wrapf(errors.ErrResolutionTooDeep, "more than %d levels at %s", max, id)
		}
		return i, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, errors.Wrap(errors.ErrTimeout, err.Error())
	}

	node := Node{ID: id, Kind: KindLeaf}
	var children []msigproxy.AccountID

	delegates, err := b.src.Delegates(ctx, id)
	if err != nil {
		return 0, errors.Wrapf(err, "delegates of %s", id)
	}
	if len(delegates) > 0 {
		node.Kind = KindProxy
		children = delegates
	} else {
		spec, err := b.src.Multisig(ctx, id)
		if err != nil {
			return 0, errors.Wrapf(err, "multisig %s", id)
		}
		if spec != nil {
			members, err := spec.AccountIDs()
			if err != nil {
				return 0, errors.Wrapf(err, "multisig %s", id)
			}
			node.Kind = KindMultisig
			node.Spec = spec
			children = members
		}
	}

	height := 1
	for _, c := range children {
		ci, err := b.visit(ctx, c, depth+1)
		if err != nil {
			return 0, err
		}
		node.Children = append(node.Children, ci)
		if h := b.height[ci] + 1; h > height {
			height = h
		}
	}

	b.tree.Nodes = append(b.tree.Nodes, node)
	b.height = append(b.height, height)
	i := len(b.tree.Nodes) - 1
	b.built[id] = i
	return i, nil
}
