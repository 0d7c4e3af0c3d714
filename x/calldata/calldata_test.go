package calldata

import (
	"context"
	"testing"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/msigtest/assert"
)

type decoderFunc func(ctx context.Context, encoded []byte) (*client.DecodedCall, error)

func (fn decoderFunc) DecodeCall(ctx context.Context, encoded []byte) (*client.DecodedCall, error) {
	return fn(ctx, encoded)
}

var knownPallet = decoderFunc(func(ctx context.Context, encoded []byte) (*client.DecodedCall, error) {
	if len(encoded) < 2 || encoded[0] != 4 {
		return nil, errors.ErrInvalidCallData
	}
	return &client.DecodedCall{PalletIndex: encoded[0], CallIndex: encoded[1], Args: encoded[2:]}, nil
})

func TestAssemble(t *testing.T) {
	cases := map[string]struct {
		raw               string
		dec               Decoder
		wantDecoded       bool
		wantPossibleError bool
		wantErr           *errors.Error
	}{
		"valid call": {
			raw:         "0x0400ff",
			dec:         knownPallet,
			wantDecoded: true,
		},
		"without prefix": {
			raw:         "0400ff",
			dec:         knownPallet,
			wantDecoded: true,
		},
		"empty": {
			raw:     "",
			dec:     knownPallet,
			wantErr: errors.ErrEmpty,
		},
		"just the prefix": {
			raw:     "0x",
			dec:     knownPallet,
			wantErr: errors.ErrEmpty,
		},
		"mid typing": {
			raw:               "0x040",
			dec:               knownPallet,
			wantPossibleError: true,
			wantErr:           errors.ErrInvalidCallData,
		},
		"unknown pallet": {
			raw:               "0x0900",
			dec:               knownPallet,
			wantPossibleError: true,
			wantErr:           errors.ErrInvalidCallData,
		},
		"no chain": {
			raw:               "0x0400",
			wantPossibleError: true,
			wantErr:           errors.ErrInvalidCallData,
		},
		"decoder failing otherwise": {
			raw: "0x0400",
			dec: decoderFunc(func(context.Context, []byte) (*client.DecodedCall, error) {
				return nil, errors.ErrNetwork
			}),
			wantPossibleError: true,
			wantErr:           errors.ErrInvalidCallData,
		},
		"decoder panics": {
			raw: "0x0400",
			dec: decoderFunc(func(context.Context, []byte) (*client.DecodedCall, error) {
				panic("boom")
			}),
			wantPossibleError: true,
			wantErr:           errors.ErrInvalidCallData,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			call := Assemble(context.Background(), tc.raw, tc.dec)
			assert.Equal(t, tc.raw, call.RawHex)
			assert.Equal(t, tc.wantDecoded, call.Ready())
			assert.Equal(t, tc.wantPossibleError, call.PossibleError())
			if tc.wantErr != nil {
				assert.IsErr(t, tc.wantErr, call.Err)
			} else {
				assert.Nil(t, call.Err)
			}
			if call.Ready() {
				assert.Equal(t, msigproxy.CallHash(call.Encoded), call.Hash)
			} else {
				assert.Equal(t, msigproxy.Hash{}, call.Hash)
			}
		})
	}
}
