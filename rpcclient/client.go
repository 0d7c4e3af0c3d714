/*
Package rpcclient implements client.Client on top of the JSON-RPC interface
of substrate nodes.

Storage is read by key, without runtime metadata, so only the entries with a
layout known in advance are supported: proxy delegations and pending
multisig operations. Calls are checked shallowly against a table of pallet
indexes.
*/
package rpcclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// Config describes the runtime of a chain.
type Config struct {
	// SS58Prefix overrides the network identifier reported by the node.
	SS58Prefix *uint16
	// ProxyPallet and MultisigPallet are the pallet indexes used to build
	// wrapping calls.
	ProxyPallet    uint8
	MultisigPallet uint8
	// Pallets lists the pallets known by the runtime. When not empty,
	// calls to other pallets are rejected.
	Pallets map[uint8]string
}

// DefaultConfig matches the asset hub runtimes of the public networks.
var DefaultConfig = Config{
	ProxyPallet:    42,
	MultisigPallet: 41,
}

// Client is a chain client speaking JSON-RPC.
type Client struct {
	conn    *Conn
	conf    Config
	prefix  uint16
	builder client.CallBuilder
	logger  log.Logger
}

var _ client.Client = (*Client)(nil)

// NewClient wraps a connection. Unless configured, the SS58 prefix is
// queried from the node and falls back to the generic one.
func NewClient(ctx context.Context, conn *Conn, conf Config) *Client {
	c := &Client{
		conn:    conn,
		conf:    conf,
		prefix:  msigproxy.GenericPrefix,
		builder: client.CallBuilder{ProxyPallet: conf.ProxyPallet, MultisigPallet: conf.MultisigPallet},
		logger:  conn.logger,
	}
	if conf.SS58Prefix != nil {
		c.prefix = *conf.SS58Prefix
		return c
	}
	var props struct {
		SS58Format *uint16 `json:"ss58Format"`
	}
	if err := conn.Call(ctx, &props, "system_properties"); err != nil {
		c.logger.Info("cannot read chain properties", "err", err)
	} else if props.SS58Format != nil {
		c.prefix = *props.SS58Format
	}
	return c
}

// Connect dials url and returns a client for it.
func Connect(ctx context.Context, url string, conf Config, logger log.Logger) (*Client, error) {
	conn, err := Dial(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, conn, conf), nil
}

func (c *Client) SS58Prefix() uint16 {
	return c.prefix
}

func (c *Client) Builder() client.Builder {
	return c.builder
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// DecodeCall checks the call index. Arguments are not decoded.
func (c *Client) DecodeCall(ctx context.Context, encoded []byte) (*client.DecodedCall, error) {
	if len(encoded) < 2 {
		return nil, errors.Wrapf(errors.ErrInvalidCallData, "%d bytes is too short", len(encoded))
	}
	name, ok := c.conf.Pallets[encoded[0]]
	if !ok && len(c.conf.Pallets) > 0 {
		return nil, errors.Wrapf(errors.ErrInvalidCallData, "unknown pallet %d", encoded[0])
	}
	return &client.DecodedCall{
		PalletIndex: encoded[0],
		CallIndex:   encoded[1],
		Pallet:      name,
		Args:        encoded[2:],
	}, nil
}

func (c *Client) QueryProxies(ctx context.Context, account msigproxy.AccountID) ([]client.ProxyRelationship, error) {
	raw, err := c.getStorage(ctx, ProxiesKey(account))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return DecodeProxies(account, raw)
}

func (c *Client) getStorage(ctx context.Context, key []byte) ([]byte, error) {
	var value *string
	if err := c.conn.Call(ctx, &value, "state_getStorage", hexString(key)); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return decodeHex(*value)
}

type storageChangeSet struct {
	Block   string      `json:"block"`
	Changes [][2]*string `json:"changes"`
}

func (c *Client) WatchMultisig(ctx context.Context, id msigproxy.AccountID, callHash msigproxy.Hash, results chan<- client.MultisigUpdate, options ...client.Option) error {
	key := hexString(MultisigKey(id, callHash))
	sub, err := c.conn.Subscribe(ctx, "state_subscribeStorage", "state_unsubscribeStorage", []string{key})
	if err != nil {
		return err
	}
	logger := c.logger.With("multisig", id.String(), "call", callHash.String())

	go func() {
		defer close(results)
		defer func() {
			// The watch context is gone by now.
			_ = sub.Unsubscribe(context.Background())
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Lost():
				send(ctx, results, client.MultisigUpdate{Err: c.conn.Err()})
				return
			case raw := <-sub.Notifications():
				var set storageChangeSet
				if err := json.Unmarshal(raw, &set); err != nil {
					logger.Error("malformed storage notification", "err", err)
					continue
				}
				for _, change := range set.Changes {
					if change[0] == nil || !strings.EqualFold(*change[0], key) {
						continue
					}
					update := client.MultisigUpdate{}
					if change[1] != nil {
						value, err := decodeHex(*change[1])
						if err == nil {
							update.Record, err = DecodeMultisig(value)
						}
						if err != nil {
							logger.Error("cannot decode multisig", "err", err)
							continue
						}
					}
					logger.Debug("multisig changed", "block", set.Block, "pending", update.Record != nil)
					if !send(ctx, results, update) {
						return
					}
				}
			}
		}
	}()
	return nil
}

func send(ctx context.Context, results chan<- client.MultisigUpdate, u client.MultisigUpdate) bool {
	select {
	case results <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) SubmitAndWatch(ctx context.Context, extrinsic []byte, events chan<- client.SubmissionEvent) error {
	sub, err := c.conn.Subscribe(ctx, "author_submitAndWatchExtrinsic", "author_unwatchExtrinsic", hexString(extrinsic))
	if err != nil {
		return err
	}

	go func() {
		defer close(events)
		defer func() {
			_ = sub.Unsubscribe(context.Background())
		}()
		broadcast := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Lost():
				return
			case raw := <-sub.Notifications():
				ev, ok := parseExtrinsicStatus(raw)
				if !ok {
					continue
				}
				if ev.Kind == client.EventBroadcast {
					if broadcast {
						continue
					}
					broadcast = true
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Kind == client.EventFinalized || ev.Kind == client.EventInvalid {
					return
				}
			}
		}
	}()
	return nil
}

// parseExtrinsicStatus maps transaction pool statuses. The dispatch result
// cannot be read without runtime metadata, so inclusion is always reported
// as successful.
func parseExtrinsicStatus(raw json.RawMessage) (client.SubmissionEvent, bool) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		switch name {
		case "ready":
			return client.SubmissionEvent{Kind: client.EventBroadcast, OK: true}, true
		case "invalid", "dropped":
			return client.SubmissionEvent{Kind: client.EventInvalid, Reason: name}, true
		}
		return client.SubmissionEvent{}, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return client.SubmissionEvent{}, false
	}
	block := func(key string) string {
		var s string
		_ = json.Unmarshal(obj[key], &s)
		return s
	}
	switch {
	case obj["broadcast"] != nil:
		return client.SubmissionEvent{Kind: client.EventBroadcast, OK: true}, true
	case obj["inBlock"] != nil:
		return client.SubmissionEvent{Kind: client.EventInBlock, Block: block("inBlock"), OK: true}, true
	case obj["finalized"] != nil:
		return client.SubmissionEvent{Kind: client.EventFinalized, Block: block("finalized"), OK: true}, true
	case obj["usurped"] != nil:
		return client.SubmissionEvent{Kind: client.EventInvalid, Reason: "usurped"}, true
	case obj["finalityTimeout"] != nil:
		return client.SubmissionEvent{Kind: client.EventInvalid, Reason: "finality timeout"}, true
	}
	return client.SubmissionEvent{}, false
}

func hexString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHex(s string) ([]byte, error) {
	b, err := msigproxy.ParseHex(s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNetwork, "malformed hex from node")
	}
	return b, nil
}

// Connector connects to the chains of a selection.
type Connector struct {
	Presets client.Presets
	Config  Config
	Logger  log.Logger
}

var _ client.Connector = (*Connector)(nil)

// Connect dials the relay chain and, when it differs, the parachain.
func (c *Connector) Connect(ctx context.Context, sel client.Selection) (*client.Chain, error) {
	presets := c.Presets
	if presets == nil {
		presets = client.DefaultPresets
	}
	relayURL, paraURL, err := presets.Endpoints(sel)
	if err != nil {
		return nil, err
	}
	logger := c.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	relay, err := Connect(ctx, relayURL, c.Config, logger.With("chain", "relay"))
	if err != nil {
		return nil, errors.Wrap(err, "relay chain")
	}
	if paraURL == relayURL {
		return client.NewChain(sel, relay, nil), nil
	}
	para, err := Connect(ctx, paraURL, c.Config, logger.With("chain", "para"))
	if err != nil {
		_ = relay.Close()
		return nil, errors.Wrap(err, "parachain")
	}
	return client.NewChain(sel, relay, para), nil
}
