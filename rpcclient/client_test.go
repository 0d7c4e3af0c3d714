package rpcclient

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(b byte) msigproxy.AccountID {
	var id msigproxy.AccountID
	for i := range id {
		id[i] = b
	}
	return id
}

func TestStorageHashing(t *testing.T) {
	// Well known prefix of System.Account
	assert.Equal(t, "26aa394eea5630e07c48ae0c9558cef7", hex.EncodeToString(twox128([]byte("System"))))
	assert.Equal(t, "b99d880ec681799c0cf30e8886371da9", hex.EncodeToString(twox128([]byte("Account"))))

	id := account(5)
	key := ProxiesKey(id)
	require.Len(t, key, 32+8+32)
	assert.Equal(t, storagePrefix("Proxy", "Proxies"), key[:32])
	assert.Equal(t, id[:], key[40:])

	hash := msigproxy.CallHash([]byte{1, 2, 3})
	key = MultisigKey(id, hash)
	require.Len(t, key, 32+8+32+16+32)
	assert.Equal(t, id[:], key[40:72])
	assert.Equal(t, hash[:], key[88:])
}

func encodeMultisig(r client.MultisigRecord) []byte {
	var b []byte
	b = scale.AppendU32(b, r.When.Height)
	b = scale.AppendU32(b, r.When.Index)
	deposit := make([]byte, 16)
	be := r.Deposit.Bytes()
	for i := range be {
		deposit[i] = be[len(be)-1-i]
	}
	b = append(b, deposit...)
	b = append(b, r.Depositor[:]...)
	b = scale.AppendCompact(b, uint64(len(r.Approvals)))
	for _, a := range r.Approvals {
		b = append(b, a[:]...)
	}
	return b
}

func encodeProxies(delegates ...msigproxy.AccountID) []byte {
	b := scale.AppendCompact(nil, uint64(len(delegates)))
	for i, d := range delegates {
		b = append(b, d[:]...)
		b = append(b, byte(i))
		b = scale.AppendU32(b, uint32(i*10))
	}
	return append(b, make([]byte, 16)...)
}

func TestDecodeStorageValues(t *testing.T) {
	record := client.MultisigRecord{
		When:      client.Timepoint{Height: 100, Index: 2},
		Deposit:   big.NewInt(123456789),
		Depositor: account(1),
		Approvals: []msigproxy.AccountID{account(1), account(3)},
	}
	got, err := DecodeMultisig(encodeMultisig(record))
	require.NoError(t, err)
	assert.Equal(t, record.When, got.When)
	assert.Equal(t, 0, record.Deposit.Cmp(got.Deposit))
	assert.Equal(t, record.Depositor, got.Depositor)
	assert.Equal(t, record.Approvals, got.Approvals)

	_, err = DecodeMultisig([]byte{1, 2, 3})
	assert.True(t, errors.ErrInput.Is(err))

	proxies, err := DecodeProxies(account(9), encodeProxies(account(1), account(2)))
	require.NoError(t, err)
	assert.Equal(t, []client.ProxyRelationship{
		{Proxied: account(9), Delegate: account(1), ProxyType: client.ProxyAny, Delay: 0},
		{Proxied: account(9), Delegate: account(2), ProxyType: 1, Delay: 10},
	}, proxies)

	// A length that cannot possibly fit the input.
	_, err = DecodeProxies(account(9), []byte{0xfc})
	assert.True(t, errors.ErrInput.Is(err))
}

func connect(t *testing.T, n *fakeNode, conf Config) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Connect(ctx, n.URL(), conf, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSS58Prefix(t *testing.T) {
	n := newFakeNode(t)
	assert.Equal(t, uint16(2), connect(t, n, DefaultConfig).SS58Prefix())

	prefix := uint16(0)
	conf := DefaultConfig
	conf.SS58Prefix = &prefix
	assert.Equal(t, uint16(0), connect(t, n, conf).SS58Prefix())

	n.setProperties(map[string]interface{}{})
	assert.Equal(t, msigproxy.GenericPrefix, connect(t, n, DefaultConfig).SS58Prefix())
}

func TestDecodeCall(t *testing.T) {
	n := newFakeNode(t)
	conf := DefaultConfig
	conf.Pallets = map[uint8]string{0: "System", 10: "Balances"}
	c := connect(t, n, conf)
	ctx := context.Background()

	call, err := c.DecodeCall(ctx, []byte{10, 3, 0xff})
	require.NoError(t, err)
	assert.Equal(t, "Balances", call.Pallet)
	assert.Equal(t, uint8(3), call.CallIndex)
	assert.Equal(t, []byte{0xff}, call.Args)

	_, err = c.DecodeCall(ctx, []byte{77, 0})
	assert.True(t, errors.ErrInvalidCallData.Is(err))
	_, err = c.DecodeCall(ctx, []byte{10})
	assert.True(t, errors.ErrInvalidCallData.Is(err))
}

func TestQueryProxies(t *testing.T) {
	n := newFakeNode(t)
	n.setStorage(hexString(ProxiesKey(account(9))), hexString(encodeProxies(account(4))))
	c := connect(t, n, DefaultConfig)
	ctx := context.Background()

	proxies, err := c.QueryProxies(ctx, account(9))
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	assert.Equal(t, account(4), proxies[0].Delegate)

	proxies, err = c.QueryProxies(ctx, account(1))
	require.NoError(t, err)
	assert.Empty(t, proxies)
}

func receive(t *testing.T, ch <-chan client.MultisigUpdate) client.MultisigUpdate {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("no update")
	}
	return client.MultisigUpdate{}
}

func TestWatchMultisig(t *testing.T) {
	n := newFakeNode(t)
	c := connect(t, n, DefaultConfig)

	id := account(8)
	hash := msigproxy.CallHash([]byte{4, 0})
	key := hexString(MultisigKey(id, hash))

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan client.MultisigUpdate)
	require.NoError(t, c.WatchMultisig(ctx, id, hash, results))

	// Nothing pending yet.
	u := receive(t, results)
	require.NoError(t, u.Err)
	assert.Nil(t, u.Record)

	record := client.MultisigRecord{
		When:      client.Timepoint{Height: 10, Index: 1},
		Deposit:   big.NewInt(5),
		Depositor: account(1),
		Approvals: []msigproxy.AccountID{account(1)},
	}
	n.setStorage(key, hexString(encodeMultisig(record)))
	u = receive(t, results)
	require.NotNil(t, u.Record)
	assert.Equal(t, record.Approvals, u.Record.Approvals)

	// Executed, the entry is removed.
	n.setStorage(key, "")
	u = receive(t, results)
	assert.Nil(t, u.Record)

	cancel()
	select {
	case _, ok := <-results:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed")
	}
	assert.Eventually(t, func() bool { return len(n.unsubscribedIDs()) == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatchMultisigConnectionLost(t *testing.T) {
	n := newFakeNode(t)
	c := connect(t, n, DefaultConfig)

	results := make(chan client.MultisigUpdate, 4)
	require.NoError(t, c.WatchMultisig(context.Background(), account(1), msigproxy.Hash{}, results))
	_ = receive(t, results)

	n.dropConnections()
	u := receive(t, results)
	assert.True(t, errors.ErrConnectionLost.Is(u.Err), "unexpected error %+v", u.Err)
}

func TestSubmitAndWatch(t *testing.T) {
	n := newFakeNode(t)
	c := connect(t, n, DefaultConfig)

	n.setSubmit(func(xt string) ([]interface{}, *rpcError) {
		return []interface{}{
			"future",
			"ready",
			map[string]interface{}{"broadcast": []string{"peer"}},
			map[string]interface{}{"inBlock": "0xaa"},
			map[string]interface{}{"finalized": "0xaa"},
		}, nil
	})

	events := make(chan client.SubmissionEvent, 8)
	require.NoError(t, c.SubmitAndWatch(context.Background(), []byte{1, 2}, events))

	var got []client.SubmissionEvent
	for ev := range events {
		got = append(got, ev)
	}
	assert.Equal(t, []string{"0x0102"}, n.submittedExtrinsics())
	assert.Equal(t, []client.SubmissionEvent{
		{Kind: client.EventBroadcast, OK: true},
		{Kind: client.EventInBlock, Block: "0xaa", OK: true},
		{Kind: client.EventFinalized, Block: "0xaa", OK: true},
	}, got)
}

func TestSubmitAndWatchRejected(t *testing.T) {
	n := newFakeNode(t)
	c := connect(t, n, DefaultConfig)

	n.setSubmit(func(string) ([]interface{}, *rpcError) {
		return nil, &rpcError{Code: 1010, Message: "Invalid Transaction", Data: []byte(`"Inability to pay some fees"`)}
	})
	err := c.SubmitAndWatch(context.Background(), []byte{1}, make(chan client.SubmissionEvent))
	require.Error(t, err)
	assert.True(t, errors.ErrInvalidTx.Is(err), "unexpected error %+v", err)
	assert.Contains(t, err.Error(), "Inability to pay some fees")

	n.setSubmit(func(string) ([]interface{}, *rpcError) {
		return []interface{}{"ready", "dropped"}, nil
	})
	events := make(chan client.SubmissionEvent, 8)
	require.NoError(t, c.SubmitAndWatch(context.Background(), []byte{1}, events))
	var got []client.SubmissionEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, client.EventInvalid, got[1].Kind)
}

func TestUnknownMethod(t *testing.T) {
	n := newFakeNode(t)
	c := connect(t, n, DefaultConfig)
	err := c.conn.Call(context.Background(), nil, "nothing_here")
	assert.True(t, errors.ErrNetwork.Is(err))
}

func TestConnector(t *testing.T) {
	relay := newFakeNode(t)
	para := newFakeNode(t)
	connector := &Connector{Config: DefaultConfig}
	ctx := context.Background()

	chain, err := connector.Connect(ctx, client.Selection{Type: client.ChainRPC, Relay: relay.URL(), Para: para.URL()})
	require.NoError(t, err)
	assert.NotEqual(t, chain.Relay, chain.Para)
	require.NoError(t, chain.Close())

	chain, err = connector.Connect(ctx, client.Selection{Type: client.ChainRPC, Relay: relay.URL()})
	require.NoError(t, err)
	assert.Equal(t, chain.Relay, chain.Para)
	require.NoError(t, chain.Close())

	_, err = connector.Connect(ctx, client.Selection{Type: client.ChainRPC, Relay: "ws://127.0.0.1:1"})
	assert.True(t, errors.ErrConnectionRejected.Is(err), "unexpected error %+v", err)
}
