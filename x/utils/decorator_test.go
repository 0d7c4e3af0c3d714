package utils

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/msigtest"
	"github.com/stretchr/testify/assert"
	"github.com/tendermint/tendermint/libs/log"
)

type panicSigner struct {
	addr msigproxy.Address
}

func (p panicSigner) Address() msigproxy.Address {
	return p.addr
}

func (p panicSigner) SignTx(ctx context.Context, call []byte) ([]byte, error) {
	panic("wallet crashed")
}

var _ client.Signer = panicSigner{}

func TestRecovery(t *testing.T) {
	p := panicSigner{addr: msigtest.Address(1)}

	// Panic signer panics. Test the test tool.
	assert.Panics(t, func() { p.SignTx(context.Background(), nil) })

	// Recovery wrapped signer returns an error.
	_, err := Recovery(p).SignTx(context.Background(), nil)
	assert.True(t, errors.ErrPanic.Is(err))

	ok := msigtest.NewSigner(2)
	tx, err := Recovery(ok).SignTx(context.Background(), []byte{1})
	assert.NoError(t, err)
	assert.Equal(t, []byte("sig:\x01"), tx)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	ctx := msigproxy.WithLogger(context.Background(), log.NewTMLogger(log.NewSyncWriter(&buf)))

	ok := msigtest.NewSigner(1)
	_, err := Logging(ok).SignTx(ctx, []byte{0xde, 0xad, 0xbe, 0xef})
	assert.NoError(t, err)

	refused := msigtest.NewSigner(2)
	refused.Err = errors.Wrap(errors.ErrConnectionRejected, "user cancelled")
	_, err = Logging(refused).SignTx(ctx, []byte{0xde, 0xad, 0xbe, 0xef})
	assert.True(t, errors.ErrConnectionRejected.Is(err))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.Contains(t, lines[0], "signed")
		assert.Contains(t, lines[0], "signer="+string(ok.Address()))
		assert.Contains(t, lines[1], "signing failed")
		assert.Contains(t, lines[1], "user cancelled")
	}
	assert.NotContains(t, buf.String(), "deadbeef")
}

func TestChain(t *testing.T) {
	leaf := msigtest.NewSigner(1)
	s := Chain(leaf, Recovery, Logging)

	assert.Equal(t, leaf.Address(), s.Address())
	assert.Equal(t, client.Signer(leaf), client.Leaf(s))
	assert.Equal(t, client.Signer(leaf), Chain(leaf))

	proxied, err := client.AsProxyDelegate(s, msigtest.Address(7), client.CallBuilder{ProxyPallet: 42, MultisigPallet: 41})
	assert.NoError(t, err)
	assert.Equal(t, client.Signer(leaf), client.Leaf(proxied))
}
