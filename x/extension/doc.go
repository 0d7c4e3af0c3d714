/*
Package extension connects to wallets that hold the user's keys.

A wallet never hands out key material. It shares a list of accounts and
signs calls on request, which is all msigproxy needs. Wallets are discovered
with a Provider:

	names := provider.ListAvailable()
	h, err := extension.Connect(ctx, provider, names[0], extension.Options{})
	signer, err := h.Signer(address)

The reactive helpers Available, Connection and Accounts keep that state in
flow cells. Connections are opened when a cell becomes observed and
released with it.

Exec talks to wallets implemented as command line programs, Static holds
wallets in memory.
*/
package extension
