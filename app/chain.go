package app

import (
	"context"

	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/flow"
	"github.com/iov-one/msigproxy/x/calldata"
)

// connection follows the chain selection. Selecting another chain closes
// the previous connection before the new one is opened, and a connection
// that completes after it was superseded is closed right away.
func (s *Session) connection() *flow.Derived[flow.Result[*client.Chain]] {
	selected := flow.Distinct[client.Selection](s.chain, flow.Equal[client.Selection])
	return flow.Switch(selected, func(sel client.Selection) flow.Cell[flow.Result[*client.Chain]] {
		if err := sel.Validate(); err != nil {
			return flow.Const(flow.Result[*client.Chain]{Err: err})
		}
		logger := s.logger.With("relay", sel.Relay, "para", sel.Para)
		connect := func(ctx context.Context) (*client.Chain, error) {
			logger.Debug("connecting")
			c, err := s.cfg.Connector.Connect(ctx, sel)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("cannot connect", "err", err)
				}
				return nil, err
			}
			logger.Info("connected")
			return c, nil
		}
		disconnect := func(c *client.Chain) {
			if err := c.Close(); err != nil {
				logger.Error("cannot close connection", "err", err)
				return
			}
			logger.Debug("disconnected")
		}
		return flow.AsyncCleanup(s.loop, connect, disconnect)
	})
}

// connectedChain returns the chain of a ready connection.
func connectedChain(r flow.Result[*client.Chain]) *client.Chain {
	if !r.Ready() {
		return nil
	}
	return r.Value
}

type callInput struct {
	chain *client.Chain
	raw   string
}

// assembleCall decodes the call data against the connected parachain. It
// is decoded again whenever the connection changes. The call is empty while
// decoding.
func (s *Session) assembleCall() *flow.Derived[calldata.Call] {
	inputs := flow.Combine2(s.conn, s.callData, func(r flow.Result[*client.Chain], raw string) callInput {
		return callInput{chain: connectedChain(r), raw: raw}
	})
	assembled := flow.AsyncMap(s.loop, flow.Distinct[callInput](inputs, flow.Equal[callInput]),
		func(ctx context.Context, in callInput) (calldata.Call, error) {
			var dec calldata.Decoder
			if in.chain != nil {
				dec = in.chain.Para
			}
			return calldata.Assemble(ctx, in.raw, dec), nil
		})
	return flow.Map(assembled, func(r flow.Result[calldata.Call]) calldata.Call {
		if r.Err != nil {
			// Assemble recovers decoder failures itself, so this is a
			// panic elsewhere.
			return calldata.Call{Err: r.Err}
		}
		return r.Value
	})
}
