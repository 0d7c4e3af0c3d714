/*
Package msigproxy defines the account identity rules shared by all
components: textual addresses and their canonical bytes, group (multisig)
account derivation and call content hashes.

We pass context through context.Context between the session, the network
clients and the extensions. Values stored in the context use the same
pattern everywhere:

  WithXYZ(Context, T) Context
  GetXYZ(Context) T
*/
package msigproxy

import (
	"context"

	"github.com/tendermint/tendermint/libs/log"
)

type contextKey int // local to the msigproxy module

const (
	contextKeyLogger contextKey = iota
)

// DefaultLogger is used for all context that have not set anything
// themselves.
var DefaultLogger = log.NewNopLogger()

// WithLogger sets the logger for this context.
func WithLogger(ctx context.Context, logger log.Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, logger)
}

// GetLogger returns the currently set logger, or DefaultLogger if none was
// set.
func GetLogger(ctx context.Context) log.Logger {
	if ctx == nil {
		return DefaultLogger
	}
	val, _ := ctx.Value(contextKeyLogger).(log.Logger)
	if val == nil {
		return DefaultLogger
	}
	return val
}

// WithLogInfo accepts keyvalue pairs, and returns another context like this,
// after passing all the keyvals to the Logger.
func WithLogInfo(ctx context.Context, keyvals ...interface{}) context.Context {
	logger := GetLogger(ctx).With(keyvals...)
	return WithLogger(ctx, logger)
}
