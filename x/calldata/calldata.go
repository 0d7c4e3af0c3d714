/*
Package calldata turns the hex text typed or pasted by the user into a call.

Decoding never fails. Text that cannot be decoded against the connected chain
produces a call without a decoded form, so that partially typed input can be
displayed with a hint instead of an error.
*/
package calldata

import (
	"context"
	"strings"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
)

// Decoder checks encoded calls against a runtime.
type Decoder interface {
	DecodeCall(ctx context.Context, encoded []byte) (*client.DecodedCall, error)
}

// Call is the transaction payload the multisig approves.
type Call struct {
	RawHex  string
	Encoded []byte
	Decoded *client.DecodedCall
	// Hash is the content hash of Encoded. It is set only for decoded
	// calls.
	Hash msigproxy.Hash
	// Err tells why the call could not be decoded.
	Err error
}

// Assemble decodes rawHex using dec. A nil decoder, when no chain is
// connected yet, leaves the call undecoded.
func Assemble(ctx context.Context, rawHex string, dec Decoder) Call {
	call := Call{RawHex: rawHex}
	text := strings.TrimSpace(rawHex)
	if text == "" || text == "0x" {
		call.Err = errors.Wrap(errors.ErrEmpty, "call data")
		return call
	}
	encoded, err := msigproxy.ParseHex(text)
	if err != nil {
		call.Err = errors.Wrap(errors.ErrInvalidCallData, "not hex")
		return call
	}
	call.Encoded = encoded
	if dec == nil {
		call.Err = errors.Wrap(errors.ErrInvalidCallData, "no chain connected")
		return call
	}
	decoded, err := decode(ctx, dec, encoded)
	if err != nil {
		if !errors.ErrInvalidCallData.Is(err) {
			err = errors.Wrap(errors.ErrInvalidCallData, err.Error())
		}
		call.Err = err
		return call
	}
	call.Decoded = decoded
	call.Hash = msigproxy.CallHash(encoded)
	return call
}

func decode(ctx context.Context, dec Decoder, encoded []byte) (c *client.DecodedCall, err error) {
	defer errors.Recover(&err)
	return dec.DecodeCall(ctx, encoded)
}

// Ready returns true if the call can be submitted.
func (c Call) Ready() bool {
	return c.Decoded != nil
}

// PossibleError returns true if the user typed something that does not
// decode. Empty input is not an error.
func (c Call) PossibleError() bool {
	text := strings.TrimSpace(c.RawHex)
	return text != "" && text != "0x" && c.Decoded == nil
}
