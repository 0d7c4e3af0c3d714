package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/params"
	"github.com/tendermint/tendermint/libs/log"
)

// commonFlags are the flags of every command talking to a chain.
type commonFlags struct {
	config    *string
	chainType *string
	relay     *string
	para      *string
}

func addCommonFlags(fl *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config: fl.String("config", env("MSIGPROXY_CONFIG", ""),
			"Configuration file. You can use MSIGPROXY_CONFIG environment variable to set it."),
		chainType: fl.String("chain-type", env("MSIGPROXY_CHAIN_TYPE", string(client.ChainPreset)),
			`How the chain is reached: "sm" for a configured chain name, "ws" for websocket endpoints.`),
		relay: fl.String("relay", env("MSIGPROXY_CHAIN_RELAY", client.DefaultSelection.Relay),
			"Relay chain name or endpoint. Proxies are read from it."),
		para: fl.String("para", env("MSIGPROXY_CHAIN_PARA", client.DefaultSelection.Para),
			"Parachain name or endpoint, where multisig operations live. Empty to use the relay chain."),
	}
}

func (c *commonFlags) selection() client.Selection {
	return client.Selection{
		Type:  client.ChainType(*c.chainType),
		Relay: *c.relay,
		Para:  *c.para,
	}
}

// load reads the configuration. Logs are written to standard error.
func (c *commonFlags) load() (*Config, log.Logger, error) {
	conf, err := loadConfig(*c.config)
	if err != nil {
		return nil, nil, err
	}
	return conf, conf.Logger(os.Stderr), nil
}

// multisigFlags declare a group the same way a shared link does.
type multisigFlags struct {
	signatories *string
	threshold   *uint
}

func addMultisigFlags(fl *flag.FlagSet) *multisigFlags {
	return &multisigFlags{
		signatories: fl.String("signatories", "", "Members of the multisig, separated by an underscore."),
		threshold:   fl.Uint("threshold", 1, "Number of approvals the multisig requires."),
	}
}

// multisig returns the declared group, or nil if no member was given.
func (m *multisigFlags) multisig() *params.Multisig {
	if *m.signatories == "" {
		return nil
	}
	out := &params.Multisig{Threshold: uint16(*m.threshold)}
	for _, s := range strings.Split(*m.signatories, "_") {
		out.Addresses = append(out.Addresses, msigproxy.Address(s))
	}
	return out
}

// argOrInput returns the first positional argument or, if there is none,
// the first line of the input.
func argOrInput(fl *flag.FlagSet, input io.Reader) (string, error) {
	if fl.NArg() > 0 {
		return fl.Arg(0), nil
	}
	s := bufio.NewScanner(input)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", fmt.Errorf("cannot read input: %s", err)
		}
		return "", fmt.Errorf("no value given")
	}
	return strings.TrimSpace(s.Text()), nil
}
