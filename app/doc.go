/*
Package app wires the building blocks of msigproxy into a Session.

A Session owns the values a user selects (chain, call data, proxy, multisig
declaration, wallet and account) and derives from them everything needed to
approve the call: a chain connection, the decoded call, the tree of accounts
allowed to sign, the signer of the selected account, the live state of the
multisig operation and a submission machine.

	s := app.NewSession(loop, app.Config{Connector: connector, Wallets: wallets})
	s.Restore(selection)
	s.Start(ctx)
	defer s.Stop(ctx)

All cells returned by a Session belong to its loop and must be read there.
Setters may be called from any goroutine.
*/
package app
