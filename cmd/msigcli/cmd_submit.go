package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/app"
	"github.com/iov-one/msigproxy/flow"
	"github.com/iov-one/msigproxy/params"
	"github.com/iov-one/msigproxy/x/calldata"
	"github.com/iov-one/msigproxy/x/submit"
)

func cmdSubmit(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Sign a call with an account of a wallet and submit it, printing every state
of the transaction until it is finalized.

When the account is a member of the multisig, directly or through proxies,
the call is approved for the group and a link the other members can open is
printed first. The call is read from -calldata, the first argument or the
first line of the input.
`)
		fl.PrintDefaults()
	}
	var (
		chainFl    = addCommonFlags(fl)
		msFl       = addMultisigFlags(fl)
		callDataFl = fl.String("calldata", "", "Hex encoded call.")
		proxyFl    = fl.String("proxy", "", "Proxied account the call is dispatched as.")
		walletFl   = fl.String("wallet", "", "Configured wallet holding the account.")
		accountFl  = fl.String("account", "", "Account signing the transaction.")
		timeoutFl  = fl.Duration("timeout", 5*time.Minute, "Give up after this time.")
	)
	fl.Parse(args)

	callData := *callDataFl
	if callData == "" {
		raw, err := argOrInput(fl, input)
		if err != nil {
			return err
		}
		callData = raw
	}
	if *walletFl == "" || *accountFl == "" {
		return fmt.Errorf("both -wallet and -account are required")
	}

	conf, logger, err := chainFl.load()
	if err != nil {
		return err
	}
	index, release, err := newIndex(conf, logger)
	if err != nil {
		return err
	}
	defer release()

	loop, stopLoop := runLoop(logger)
	defer stopLoop()
	ctx, cancel := interruptible(*timeoutFl)
	defer cancel()

	session := app.NewSession(loop, app.Config{
		Connector: newConnector(conf, logger),
		Wallets:   newWallets(conf),
		Index:     index,
		Logger:    logger,
		LinkBase:  conf.LinkBase,
	})
	chain := chainFl.selection()
	session.Restore(params.Selection{
		Chain:    &chain,
		CallData: callData,
		Proxy:    msigproxy.Address(*proxyFl),
		Multisig: msFl.multisig(),
	})
	session.SelectWallet(*walletFl)
	session.SelectAccount(msigproxy.Address(*accountFl))
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := session.Stop(context.Background()); err != nil {
			logger.Error("cannot stop session", "err", err)
		}
	}()

	action, err := waitAction(ctx, loop, session)
	if err != nil {
		return err
	}
	switch action.Kind {
	case app.ActionMultisig:
		id := action.Multisig.Account.Address(msigproxy.GenericPrefix)
		fmt.Fprintf(output, "approving for multisig %s\nshare %s\n", id, action.Link)
	default:
		fmt.Fprintln(output, "submitting directly")
	}

	states := make(chan submit.State, 16)
	var unsubscribe func()
	err = loop.Do(ctx, func() {
		unsubscribe = session.Submission().Subscribe(func(st submit.State) {
			if st.Kind != submit.Idle {
				states <- st
			}
		})
	})
	if err != nil {
		return err
	}
	defer func() { _ = loop.Do(context.Background(), unsubscribe) }()
	session.Submit()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no final state: %s", ctx.Err())
		case st := <-states:
			if _, err := fmt.Fprintln(output, st.Message()); err != nil {
				return err
			}
			if !st.Terminal() {
				continue
			}
			if st.Kind != submit.Finalized || !st.OK {
				return fmt.Errorf("transaction not executed")
			}
			return nil
		}
	}
}

// waitAction waits until the call is decoded and the selected account can
// sign it. When the context ends first, the last reason the call cannot be
// submitted is returned.
func waitAction(ctx context.Context, loop *flow.Loop, session *app.Session) (app.Action, error) {
	type readiness struct {
		action app.Action
		reason error
	}
	ready := flow.Combine3(session.Action(), session.Signer(), session.Call(),
		func(a app.Action, s app.SignerState, c calldata.Call) readiness {
			switch {
			case !c.Ready():
				return readiness{reason: c.Err}
			case a.Kind == app.ActionNone:
				return readiness{reason: s.Err}
			}
			return readiness{action: a}
		})

	actions := make(chan app.Action, 1)
	var (
		unsubscribe func()
		last        error
	)
	err := loop.Do(ctx, func() {
		unsubscribe = ready.Subscribe(func(r readiness) {
			if r.action.Kind == app.ActionNone {
				last = r.reason
				return
			}
			select {
			case actions <- r.action:
			default:
			}
		})
	})
	if err != nil {
		return app.Action{}, err
	}
	defer func() { _ = loop.Do(context.Background(), unsubscribe) }()

	select {
	case a := <-actions:
		return a, nil
	case <-ctx.Done():
		var reason error
		_ = loop.Do(context.Background(), func() { reason = last })
		if reason == nil {
			reason = ctx.Err()
		}
		return app.Action{}, fmt.Errorf("cannot submit: %s", reason)
	}
}
