package utils

import (
	"context"
	"time"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
)

// Logging logs every signature request with the logger of its context.
// Failures are logged as errors, successes as debug. Neither the call nor
// the signed transaction are logged.
func Logging(inner client.Signer) client.Signer {
	return &decorated{
		inner: inner,
		sign: func(ctx context.Context, call []byte) ([]byte, error) {
			start := time.Now()
			tx, err := inner.SignTx(ctx, call)
			logDuration(ctx, inner.Address(), start, len(call), err)
			return tx, err
		},
	}
}

// logDuration writes information about the time and result to the logger
func logDuration(ctx context.Context, signer msigproxy.Address, start time.Time, size int, err error) {
	delta := time.Since(start)
	logger := msigproxy.GetLogger(ctx).With(
		"signer", signer,
		"call_size", size,
		"duration", delta/time.Microsecond,
	)
	if err != nil {
		logger.Error("signing failed", "err", err)
		return
	}
	logger.Debug("signed")
}
