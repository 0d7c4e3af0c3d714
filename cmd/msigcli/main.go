package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/iov-one/msigproxy"
)

// commands is a register of all available commands that can be executed by
// this program. The name is used to match with the first argument given.
//
// A command function is given stdin, stdout and the command line arguments
// without the program name and the command name. It parses the arguments
// itself, using the flag package. Commands that work on a single value read
// it from the arguments or, when none is given, from the input, so they can
// be combined in a pipeline:
//
//	$ msigcli multisig-id -threshold 2 -signatories A_B_C \
//	    | msigcli address -prefix 2
//
var commands = map[string]func(input io.Reader, output io.Writer, args []string) error{
	"address":     cmdAddress,
	"call-hash":   cmdCallHash,
	"decode-call": cmdDecodeCall,
	"link":        cmdLink,
	"multisig-id": cmdMultisigID,
	"resolve":     cmdResolve,
	"submit":      cmdSubmit,
	"track":       cmdTrack,
	"version":     cmdVersion,
}

func main() {
	if len(os.Args) == 1 {
		fmt.Fprintf(os.Stderr, "%s approves calls of multisig and proxy accounts.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s <command> [<flags>]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		fmt.Fprintf(os.Stderr, "Run '%s <command> -help' to learn more about each command.\n", os.Args[0])
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		os.Exit(2)
	}

	// Skip two first arguments. Second argument is the command name that
	// we just consumed.
	if err := run(os.Stdin, os.Stdout, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func availableCmds() []string {
	available := make([]string, 0, len(commands))
	for name := range commands {
		available = append(available, name)
	}
	sort.Strings(available)
	return available
}

func cmdVersion(in io.Reader, out io.Writer, args []string) error {
	_, err := fmt.Fprintln(out, msigproxy.Version())
	return err
}
