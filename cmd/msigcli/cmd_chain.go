package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/flow"
	"github.com/iov-one/msigproxy/x/calldata"
	"github.com/iov-one/msigproxy/x/linked"
	"github.com/iov-one/msigproxy/x/tracker"
	"github.com/tendermint/tendermint/libs/log"
)

// connect opens the selected chain. Closing the returned chain is the
// responsibility of the caller.
func connect(ctx context.Context, conf *Config, logger log.Logger, sel client.Selection) (*client.Chain, error) {
	chain, err := newConnector(conf, logger).Connect(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s: %s", sel.Relay, err)
	}
	return chain, nil
}

// interruptible returns a context cancelled on interrupt or after timeout,
// unless timeout is zero.
func interruptible(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// runLoop starts a loop that runs until the returned function is called.
// The loop outlives the command context, so that cells can be released
// after an interrupt.
func runLoop(logger log.Logger) (*flow.Loop, func()) {
	loop := flow.NewLoop(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	return loop, cancel
}

func cmdDecodeCall(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Check a hex encoded call against the runtime of the selected parachain and
print its hash and a short description.

The call is read from the first argument or, if none is given, from the
first line of the input.
`)
		fl.PrintDefaults()
	}
	var (
		chainFl   = addCommonFlags(fl)
		timeoutFl = fl.Duration("timeout", 30*time.Second, "Give up after this time.")
	)
	fl.Parse(args)

	raw, err := argOrInput(fl, input)
	if err != nil {
		return err
	}
	conf, logger, err := chainFl.load()
	if err != nil {
		return err
	}
	ctx, cancel := interruptible(*timeoutFl)
	defer cancel()
	chain, err := connect(ctx, conf, logger, chainFl.selection())
	if err != nil {
		return err
	}
	defer chain.Close()

	call := calldata.Assemble(ctx, raw, chain.Para)
	if !call.Ready() {
		return fmt.Errorf("cannot decode call: %s", call.Err)
	}
	_, err = fmt.Fprintf(output, "%s\t%s\n", call.Hash, call.Decoded)
	return err
}

func cmdResolve(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print every account that can sign for a proxy or a multisig, one per line,
together with the way its signature is wrapped.

The target is the proxy if given, the declared multisig otherwise. Multisig
accounts found on the way are looked up in the configured indexer, unless
declared with -signatories.
`)
		fl.PrintDefaults()
	}
	var (
		chainFl   = addCommonFlags(fl)
		msFl      = addMultisigFlags(fl)
		proxyFl   = fl.String("proxy", "", "Proxied account to resolve.")
		depthFl   = fl.Int("depth", linked.DefaultMaxDepth, "Maximum number of levels.")
		timeoutFl = fl.Duration("timeout", time.Minute, "Give up after this time.")
	)
	fl.Parse(args)

	conf, logger, err := chainFl.load()
	if err != nil {
		return err
	}
	index, release, err := newIndex(conf, logger)
	if err != nil {
		return err
	}
	defer release()

	var spec *msigproxy.CompositeSpec
	if m := msFl.multisig(); m != nil {
		s := m.Spec()
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid multisig: %s", err)
		}
		spec = &s
	}
	target := msigproxy.Address(*proxyFl)
	if target == "" {
		if spec == nil {
			return fmt.Errorf("neither -proxy nor -signatories given")
		}
		id, err := spec.ID()
		if err != nil {
			return err
		}
		target = id.Address(msigproxy.GenericPrefix)
	}

	ctx, cancel := interruptible(*timeoutFl)
	defer cancel()
	chain, err := connect(ctx, conf, logger, chainFl.selection())
	if err != nil {
		return err
	}
	defer chain.Close()

	src := linked.NewChainSource(chain.Relay, index, logger)
	if spec != nil {
		if src, err = src.WithManual(*spec); err != nil {
			return err
		}
	}
	tree, err := linked.Build(ctx, target, src, linked.Options{MaxDepth: *depthFl})
	if err != nil {
		return fmt.Errorf("cannot discover accounts: %s", err)
	}
	res, err := linked.Resolve(tree)
	if err != nil {
		return fmt.Errorf("cannot resolve accounts: %s", err)
	}
	prefix := chain.Para.SS58Prefix()
	for _, id := range res.Accounts() {
		addr := id.Address(prefix)
		path, _ := res.Lookup(addr)
		if _, err := fmt.Fprintf(output, "%s\t%s\n", addr, describePath(path, prefix)); err != nil {
			return err
		}
	}
	return nil
}

// describePath writes the steps of a path from the root down.
func describePath(p linked.Path, prefix uint16) string {
	if len(p.Steps) == 0 {
		return "target"
	}
	steps := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = fmt.Sprintf("%s %s", s.Kind, s.Account.Address(prefix))
	}
	return strings.Join(steps, " > ")
}

func cmdTrack(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Follow the approvals of a multisig operation, printing a line for every
change, until interrupted.

The operation is identified by the multisig account, given directly with
-multisig or declared with -signatories, and by the hash of its call, given
with -hash or computed from the hex encoded call given as the first argument
or on the first line of the input.
`)
		fl.PrintDefaults()
	}
	var (
		chainFl    = addCommonFlags(fl)
		msFl       = addMultisigFlags(fl)
		multisigFl = fl.String("multisig", "", "Multisig account.")
		hashFl     = fl.String("hash", "", "Call hash of the operation.")
		onceFl     = fl.Bool("once", false, "Exit after printing the current state.")
		timeoutFl  = fl.Duration("timeout", 0, "Exit after this time. Zero to follow until interrupted.")
	)
	fl.Parse(args)

	var id msigproxy.AccountID
	switch m := msFl.multisig(); {
	case *multisigFl != "":
		var err error
		if id, err = msigproxy.Canonicalize(msigproxy.Address(*multisigFl)); err != nil {
			return fmt.Errorf("invalid multisig: %s", err)
		}
	case m != nil:
		var err error
		if id, err = m.Spec().ID(); err != nil {
			return fmt.Errorf("invalid multisig: %s", err)
		}
	default:
		return fmt.Errorf("neither -multisig nor -signatories given")
	}

	var hash msigproxy.Hash
	if *hashFl != "" {
		raw, err := msigproxy.ParseHex(*hashFl)
		if err != nil || len(raw) != len(hash) {
			return fmt.Errorf("invalid call hash %q", *hashFl)
		}
		copy(hash[:], raw)
	} else {
		raw, err := argOrInput(fl, input)
		if err != nil {
			return err
		}
		call, err := msigproxy.ParseHex(raw)
		if err != nil {
			return fmt.Errorf("invalid call: %s", err)
		}
		hash = msigproxy.CallHash(call)
	}

	conf, logger, err := chainFl.load()
	if err != nil {
		return err
	}
	ctx, cancel := interruptible(*timeoutFl)
	defer cancel()
	chain, err := connect(ctx, conf, logger, chainFl.selection())
	if err != nil {
		return err
	}
	defer chain.Close()

	loop, stopLoop := runLoop(logger)
	defer stopLoop()

	prefix := chain.Para.SS58Prefix()
	lines := make(chan string, 16)
	failed := make(chan error, 1)
	status := tracker.Track(loop, chain.Para, id, hash, tracker.Options{Logger: logger})
	var unsubscribe func()
	err = loop.Do(ctx, func() {
		unsubscribe = status.Subscribe(func(st tracker.Status) {
			switch {
			case !st.Loaded:
			case st.Err != nil:
				select {
				case failed <- st.Err:
				default:
				}
			default:
				select {
				case lines <- describeStatus(st, prefix):
				default:
					logger.Info("output is too slow, update skipped")
				}
			}
		})
	})
	if err != nil {
		return err
	}
	defer func() { _ = loop.Do(context.Background(), unsubscribe) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return fmt.Errorf("cannot track operation: %s", err)
		case line := <-lines:
			if _, err := fmt.Fprintln(output, line); err != nil {
				return err
			}
			if *onceFl {
				return nil
			}
		}
	}
}

func describeStatus(st tracker.Status, prefix uint16) string {
	if st.Record == nil {
		return "no pending operation"
	}
	approvers := make([]string, len(st.Record.Approvals))
	for i, a := range st.Record.Approvals {
		approvers[i] = string(a.Address(prefix))
	}
	return fmt.Sprintf("%d approvals since block %d: %s",
		len(approvers), st.Record.When.Height, strings.Join(approvers, ", "))
}
