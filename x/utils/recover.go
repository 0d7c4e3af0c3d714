package utils

import (
	"context"

	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
)

// Recovery turns a panicking wallet into an ErrPanic error.
func Recovery(inner client.Signer) client.Signer {
	return &decorated{
		inner: inner,
		sign: func(ctx context.Context, call []byte) (_ []byte, err error) {
			defer errors.Recover(&err)
			return inner.SignTx(ctx, call)
		},
	}
}
