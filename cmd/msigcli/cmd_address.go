package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/iov-one/msigproxy"
)

func cmdAddress(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print an address encoded for another network, followed by its account bytes.

The address is read from the first argument or, if none is given, from the
first line of the input. Any network encoding is accepted.
`)
		fl.PrintDefaults()
	}
	var (
		prefixFl = fl.Uint("prefix", uint(msigproxy.GenericPrefix), "Network identifier to encode the address for.")
	)
	fl.Parse(args)

	raw, err := argOrInput(fl, input)
	if err != nil {
		return err
	}
	id, err := msigproxy.Canonicalize(msigproxy.Address(raw))
	if err != nil {
		return fmt.Errorf("invalid address: %s", err)
	}
	if *prefixFl > 1<<14-1 {
		return fmt.Errorf("prefix %d out of range", *prefixFl)
	}
	_, err = fmt.Fprintf(output, "%s\t%s\n", id.Address(uint16(*prefixFl)), id)
	return err
}

func cmdMultisigID(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print the address of a multisig account. The address depends on the members
and the threshold only, the order of members does not matter.
`)
		fl.PrintDefaults()
	}
	var (
		prefixFl = fl.Uint("prefix", uint(msigproxy.GenericPrefix), "Network identifier to encode the address for.")
		msFl     = addMultisigFlags(fl)
	)
	fl.Parse(args)

	m := msFl.multisig()
	if m == nil {
		return fmt.Errorf("no signatories given")
	}
	id, err := m.Spec().ID()
	if err != nil {
		return fmt.Errorf("invalid multisig: %s", err)
	}
	_, err = fmt.Fprintln(output, id.Address(uint16(*prefixFl)))
	return err
}

func cmdCallHash(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print the hash identifying a multisig operation of given hex encoded call.

The call is read from the first argument or, if none is given, from the
first line of the input.
`)
		fl.PrintDefaults()
	}
	fl.Parse(args)

	raw, err := argOrInput(fl, input)
	if err != nil {
		return err
	}
	call, err := msigproxy.ParseHex(raw)
	if err != nil {
		return fmt.Errorf("invalid call: %s", err)
	}
	_, err = fmt.Fprintln(output, msigproxy.CallHash(call))
	return err
}
