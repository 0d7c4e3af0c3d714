/*
Package index looks up group declarations in a multisig indexer.

An indexer follows the chain and records the members and threshold of every
group account that was ever used. Group accounts are derived by hashing, so
without an indexer a group must be entered member by member. The indexer is
queried with a GraphQL request:

	{"query": "...", "variables": {"account": "0x<account id>"}}

and answers with the matching accounts:

	{"data": {"accounts": {"nodes": [{
		"threshold": 2,
		"signatories": {"nodes": [{"signatory": {"address": "5Grw..."}}]}
	}]}}}

Results are cached by account. A failing indexer is never fatal, the group
can still be entered manually.
*/
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/cache"
	"github.com/iov-one/msigproxy/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// DefaultTimeout limits a single indexer request.
const DefaultTimeout = 10 * time.Second

// maxResponseSize limits how much of a response is read.
const maxResponseSize = 1 << 20

const multisigQuery = `query Multisig($account: String!) {
  accounts(filter: {id: {equalTo: $account}, isMultisig: {equalTo: true}}) {
    nodes {
      threshold
      signatories { nodes { signatory { address } } }
    }
  }
}`

// Client queries a single indexer endpoint.
type Client struct {
	url    string
	http   *http.Client
	groups *cache.Bucket[group]
	logger log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithCache keeps found groups in store. Cached groups are returned without
// asking the indexer.
func WithCache(store cache.Store) Option {
	return func(cl *Client) { cl.groups = cache.NewBucket[group](store, "multisig") }
}

// WithLogger sets the logger used to report indexer failures.
func WithLogger(l log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient returns a client of the indexer at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: log.NewNopLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LookupMultisig returns the group declaration of account. It returns
// ErrNotFound if the indexer does not know the account as a group, and
// ErrNetwork if the indexer could not be asked.
func (c *Client) LookupMultisig(ctx context.Context, account msigproxy.Address) (*msigproxy.CompositeSpec, error) {
	id, err := msigproxy.Canonicalize(account)
	if err != nil {
		return nil, err
	}
	key := id.String()

	if c.groups != nil {
		cached, ok, err := c.groups.Get(key)
		if err != nil {
			c.logger.Error("cannot read cached group", "account", account, "err", err)
		} else if ok {
			return cached.spec(), nil
		}
	}

	spec, err := c.query(ctx, id)
	if err != nil {
		return nil, err
	}
	// The returned group must derive the requested account.
	got, err := spec.ID()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "indexer returned an invalid group: %s", err)
	}
	if got != id {
		return nil, errors.Wrapf(errors.ErrNotFound, "indexer returned group %s", got)
	}

	if c.groups != nil {
		if err := c.groups.Put(key, newGroup(*spec)); err != nil {
			c.logger.Error("cannot cache group", "account", account, "err", err)
		}
	}
	return spec, nil
}

func (c *Client) query(ctx context.Context, id msigproxy.AccountID) (*msigproxy.CompositeSpec, error) {
	body, err := json.Marshal(graphRequest{
		Query:     multisigQuery,
		Variables: map[string]string{"account": id.String()},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}
	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrTimeout, err.Error())
		}
		return nil, errors.Wrap(errors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetwork, err.Error())
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrap(errors.ErrNotFound, "indexer")
	case resp.StatusCode >= 300:
		return nil, errors.Wrapf(errors.ErrNetwork, "indexer responded %s", resp.Status)
	}

	var res graphResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "malformed indexer response: %s", err)
	}
	if len(res.Errors) > 0 {
		return nil, errors.Wrapf(errors.ErrNetwork, "indexer: %s", res.Errors[0].Message)
	}
	nodes := res.Data.Accounts.Nodes
	if len(nodes) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "account %s", id)
	}
	return nodes[0].spec()
}

type graphRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type graphResponse struct {
	Data struct {
		Accounts struct {
			Nodes []accountNode `json:"nodes"`
		} `json:"accounts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type accountNode struct {
	Threshold   int `json:"threshold"`
	Signatories struct {
		Nodes []struct {
			Signatory struct {
				Address string `json:"address"`
			} `json:"signatory"`
		} `json:"nodes"`
	} `json:"signatories"`
}

func (n accountNode) spec() (*msigproxy.CompositeSpec, error) {
	if n.Threshold < 1 || n.Threshold > 0xffff {
		return nil, errors.Wrapf(errors.ErrNotFound, "indexer returned threshold %d", n.Threshold)
	}
	spec := &msigproxy.CompositeSpec{Threshold: uint16(n.Threshold)}
	for _, s := range n.Signatories.Nodes {
		spec.Members = append(spec.Members, msigproxy.Address(s.Signatory.Address))
	}
	return spec, nil
}

// group is the cached form of a declaration.
type group struct {
	Threshold uint32
	Members   []string
}

func newGroup(spec msigproxy.CompositeSpec) group {
	g := group{Threshold: uint32(spec.Threshold)}
	for _, m := range spec.Members {
		g.Members = append(g.Members, string(m))
	}
	return g
}

func (g group) spec() *msigproxy.CompositeSpec {
	spec := &msigproxy.CompositeSpec{Threshold: uint16(g.Threshold)}
	for _, m := range g.Members {
		spec.Members = append(spec.Members, msigproxy.Address(m))
	}
	return spec
}
