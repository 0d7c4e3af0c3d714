package linked

import (
	"context"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// ProxyQuerier reads proxy relationships, usually from the relay chain.
type ProxyQuerier interface {
	QueryProxies(ctx context.Context, account msigproxy.AccountID) ([]client.ProxyRelationship, error)
}

// Index looks up group declarations by their account. It returns
// ErrNotFound for accounts it does not know.
type Index interface {
	LookupMultisig(ctx context.Context, account msigproxy.Address) (*msigproxy.CompositeSpec, error)
}

// ChainSource is a Source reading delegates from the chain and group
// declarations from specs entered by the user, falling back to an index.
type ChainSource struct {
	proxies ProxyQuerier
	index   Index
	manual  map[msigproxy.AccountID]msigproxy.CompositeSpec
	logger  log.Logger
}

var _ Source = (*ChainSource)(nil)

// NewChainSource returns a source using given chain connection. index may
// be nil.
func NewChainSource(proxies ProxyQuerier, index Index, logger log.Logger) *ChainSource {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &ChainSource{
		proxies: proxies,
		index:   index,
		manual:  make(map[msigproxy.AccountID]msigproxy.CompositeSpec),
		logger:  logger,
	}
}

// WithManual registers group declarations provided by the user. They take
// precedence over the index. Invalid declarations are rejected.
func (s *ChainSource) WithManual(specs ...msigproxy.CompositeSpec) (*ChainSource, error) {
	for _, spec := range specs {
		id, err := spec.ID()
		if err != nil {
			return nil, err
		}
		s.manual[id] = spec
	}
	return s, nil
}

func (s *ChainSource) Delegates(ctx context.Context, id msigproxy.AccountID) ([]msigproxy.AccountID, error) {
	rels, err := s.proxies.QueryProxies(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]msigproxy.AccountID, 0, len(rels))
	seen := make(map[msigproxy.AccountID]struct{}, len(rels))
	for _, r := range rels {
		// The same delegate can be registered with several proxy types.
		if _, ok := seen[r.Delegate]; ok {
			continue
		}
		seen[r.Delegate] = struct{}{}
		out = append(out, r.Delegate)
	}
	return out, nil
}

// Multisig never fails because of the index. An index that cannot be
// reached is logged and treated as not knowing the account.
func (s *ChainSource) Multisig(ctx context.Context, id msigproxy.AccountID) (*msigproxy.CompositeSpec, error) {
	if spec, ok := s.manual[id]; ok {
		return &spec, nil
	}
	if s.index == nil {
		return nil, nil
	}
	spec, err := s.index.LookupMultisig(ctx, msigproxy.EncodeSS58(id, msigproxy.GenericPrefix))
	switch {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		return nil, nil
	default:
		s.logger.Info("multisig index lookup failed", "account", id, "err", err)
		return nil, nil
	}
	if spec == nil {
		return nil, nil
	}
	// Never trust a declaration that does not derive the account it was
	// returned for.
	derived, err := spec.ID()
	if err != nil || derived != id {
		s.logger.Info("multisig index returned a mismatching declaration", "account", id)
		return nil, nil
	}
	return spec, nil
}
