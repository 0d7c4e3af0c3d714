/*
Package params reads and writes the selection a user made, so that it can be
shared as a link and restored later.

A selection is stored as URL query parameters:

	chainType    "sm" or "ws"
	chainRelay   relay chain preset or endpoint
	chainPara    parachain preset or endpoint
	chainValue   used instead of chainRelay and chainPara when the chain has
	             no separate parachain
	calldata     hex encoded call
	proxy        the proxied account
	signatories  group members joined with "_", or a JSON document
	             {"addresses": [...], "threshold": 2}
	threshold    group threshold, 1 when missing

Addresses are kept as they were written, so encoding a decoded selection
produces the same text.
*/
package params

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
)

const (
	KeyChainType   = "chainType"
	KeyChainRelay  = "chainRelay"
	KeyChainPara   = "chainPara"
	KeyChainValue  = "chainValue"
	KeyCallData    = "calldata"
	KeyProxy       = "proxy"
	KeySignatories = "signatories"
	KeyThreshold   = "threshold"
)

const signatorySeparator = "_"

// Selection is everything a user selected that can be restored.
type Selection struct {
	// Chain is nil when no chain was selected.
	Chain    *client.Selection
	CallData string
	Proxy    msigproxy.Address
	// Multisig is nil when no group was declared.
	Multisig *Multisig
}

// Multisig is a group declaration as entered. Unlike a CompositeSpec it may
// be incomplete: missing members are empty addresses.
type Multisig struct {
	Addresses []msigproxy.Address `json:"addresses"`
	Threshold uint16              `json:"threshold"`
}

// Spec returns the declaration as a CompositeSpec. It does not validate it.
func (m Multisig) Spec() msigproxy.CompositeSpec {
	return msigproxy.CompositeSpec{
		Threshold: m.Threshold,
		Members:   append([]msigproxy.Address(nil), m.Addresses...),
	}
}

// HasChain returns true if a chain was selected.
func (s Selection) HasChain() bool {
	return s.Chain != nil
}

// HasCallData returns true if a call was provided.
func (s Selection) HasCallData() bool {
	return s.CallData != ""
}

// Encode returns the query string of a selection. Keys are sorted and
// empty values are left out, as is a chain that is not valid.
func Encode(s Selection) string {
	v := url.Values{}
	if c := s.Chain; c != nil && c.Validate() == nil {
		v.Set(KeyChainType, string(c.Type))
		if c.Para == "" {
			v.Set(KeyChainValue, c.Relay)
		} else {
			v.Set(KeyChainRelay, c.Relay)
			v.Set(KeyChainPara, c.Para)
		}
	}
	if s.CallData != "" {
		v.Set(KeyCallData, s.CallData)
	}
	if s.Proxy != "" {
		v.Set(KeyProxy, string(s.Proxy))
	}
	if m := s.Multisig; m != nil {
		parts := make([]string, len(m.Addresses))
		for i, a := range m.Addresses {
			parts[i] = string(a)
		}
		if joined := strings.Join(parts, signatorySeparator); joined != "" {
			v.Set(KeySignatories, joined)
			v.Set(KeyThreshold, strconv.FormatUint(uint64(m.Threshold), 10))
		}
	}
	return v.Encode()
}

// Decode reads a query string. Malformed parameters are reported together
// and left out of the returned selection, which holds everything that could
// be read.
func Decode(query string) (Selection, error) {
	query = strings.TrimPrefix(query, "#")
	query = strings.TrimPrefix(query, "?")
	v, err := url.ParseQuery(query)
	if err != nil {
		return Selection{}, errors.Wrap(errors.ErrInput, err.Error())
	}

	var (
		sel  Selection
		errs error
	)

	chain, err := decodeChain(v)
	errs = errors.Append(errs, err)
	sel.Chain = chain

	sel.CallData = v.Get(KeyCallData)
	sel.Proxy = msigproxy.Address(v.Get(KeyProxy))

	ms, err := decodeMultisig(v.Get(KeySignatories), v.Get(KeyThreshold))
	errs = errors.Append(errs, err)
	sel.Multisig = ms

	return sel, errs
}

func decodeChain(v url.Values) (*client.Selection, error) {
	typ := client.ChainType(v.Get(KeyChainType))
	if typ == "" {
		return nil, nil
	}
	switch typ {
	case client.ChainPreset, client.ChainRPC:
	default:
		return nil, errors.Field(KeyChainType, errors.ErrInput, "unknown chain type %q", typ)
	}

	if value := v.Get(KeyChainValue); value != "" {
		return &client.Selection{Type: typ, Relay: value}, nil
	}
	relay, para := v.Get(KeyChainRelay), v.Get(KeyChainPara)
	if relay == "" || para == "" {
		return nil, nil
	}
	return &client.Selection{Type: typ, Relay: relay, Para: para}, nil
}

func decodeMultisig(signatories, threshold string) (*Multisig, error) {
	if signatories == "" {
		return nil, nil
	}

	if strings.HasPrefix(strings.TrimSpace(signatories), "{") {
		var doc struct {
			Addresses []*string `json:"addresses"`
			Threshold *uint16   `json:"threshold"`
		}
		if err := json.Unmarshal([]byte(signatories), &doc); err != nil {
			return nil, errors.Field(KeySignatories, errors.ErrInput, "%s", err)
		}
		m := &Multisig{Threshold: 1}
		for _, a := range doc.Addresses {
			if a == nil {
				m.Addresses = append(m.Addresses, "")
			} else {
				m.Addresses = append(m.Addresses, msigproxy.Address(*a))
			}
		}
		if doc.Threshold != nil {
			m.Threshold = *doc.Threshold
		}
		return m, nil
	}

	m := &Multisig{Threshold: 1}
	for _, a := range strings.Split(signatories, signatorySeparator) {
		m.Addresses = append(m.Addresses, msigproxy.Address(a))
	}
	if threshold == "" {
		return m, nil
	}
	n, err := strconv.ParseUint(threshold, 10, 16)
	if err != nil {
		return m, errors.Field(KeyThreshold, errors.ErrInput, "not a number: %q", threshold)
	}
	m.Threshold = uint16(n)
	return m, nil
}

// Link returns base with the selection attached as its fragment.
func Link(base string, s Selection) string {
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	return base + "#" + Encode(s)
}

// ParseLink decodes the selection attached to a link. A link without a
// fragment carries an empty selection.
func ParseLink(link string) (Selection, error) {
	i := strings.IndexByte(link, '#')
	if i < 0 {
		return Selection{}, nil
	}
	return Decode(link[i+1:])
}
