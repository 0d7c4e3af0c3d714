package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/params"
)

func cmdLink(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print a link that opens a call, so that other members of a multisig can
approve it.

With -parse, read a link from the first argument or the input and print the
selection it carries as JSON instead.
`)
		fl.PrintDefaults()
	}
	var (
		parseFl    = fl.Bool("parse", false, "Decode a link instead of creating one.")
		baseFl     = fl.String("base", env("MSIGPROXY_LINK_BASE", "https://multisig.iov.one/"), "Address the link points to.")
		callDataFl = fl.String("calldata", "", "Hex encoded call.")
		proxyFl    = fl.String("proxy", "", "Proxied account the call is dispatched as.")
		chainFl    = addCommonFlags(fl)
		msFl       = addMultisigFlags(fl)
	)
	fl.Parse(args)

	if *parseFl {
		raw, err := argOrInput(fl, input)
		if err != nil {
			return err
		}
		sel, err := params.ParseLink(raw)
		if err != nil {
			return fmt.Errorf("invalid link: %s", err)
		}
		pretty, err := json.MarshalIndent(sel, "", "\t")
		if err != nil {
			return fmt.Errorf("cannot serialize selection: %s", err)
		}
		_, err = fmt.Fprintln(output, string(pretty))
		return err
	}

	chain := chainFl.selection()
	sel := params.Selection{
		Chain:    &chain,
		CallData: *callDataFl,
		Proxy:    msigproxy.Address(*proxyFl),
		Multisig: msFl.multisig(),
	}
	_, err := fmt.Fprintln(output, params.Link(*baseFl, sel))
	return err
}
