package extension

import (
	"context"
	"strings"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
)

// Account is an account exposed by a wallet.
type Account struct {
	Address msigproxy.Address `json:"address"`
	Name    string            `json:"name,omitempty"`
}

// Provider gives access to the wallets installed for the user.
type Provider interface {
	// ListAvailable returns the names of wallets that can be connected
	// to right now.
	ListAvailable() []string

	// Connect asks the wallet called name for access. It fails with
	// ErrConnectionRejected if the wallet refused.
	Connect(ctx context.Context, name string) (Handle, error)
}

// Handle is a connection to a wallet.
type Handle interface {
	// Accounts returns the accounts currently shared by the wallet.
	Accounts() []Account

	// Subscribe calls fn every time the shared accounts change. Call the
	// returned function to stop.
	Subscribe(fn func([]Account)) (unsubscribe func())

	// Signer returns a signer of an account shared by the wallet. It
	// fails with ErrNotFound for other accounts.
	Signer(address msigproxy.Address) (client.Signer, error)

	// Disconnect releases the connection. Signers obtained from the
	// handle stop working.
	Disconnect() error
}

// pendingAuthorization is reported by wallets that reject a connection
// while an earlier request still waits for the user.
const pendingAuthorization = "pending authorization request"

// IsPendingAuthorization returns true if a connection was rejected only
// because an earlier request was not answered yet.
func IsPendingAuthorization(err error) bool {
	return errors.ErrConnectionRejected.Is(err) && strings.Contains(err.Error(), pendingAuthorization)
}

// FindAccount returns the account of h matching address in any network
// encoding.
func FindAccount(h Handle, address msigproxy.Address) (Account, bool) {
	for _, a := range h.Accounts() {
		if msigproxy.AddressesEquivalent(a.Address, address) {
			return a, true
		}
	}
	return Account{}, false
}
