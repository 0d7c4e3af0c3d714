package client

import (
	"sort"

	"github.com/iov-one/msigproxy/errors"
)

// Preset is a well known relay chain together with its parachains.
type Preset struct {
	Relay      string            `mapstructure:"relay"`
	Parachains map[string]string `mapstructure:"parachains"`
}

// Presets maps relay chain names to their endpoints.
type Presets map[string]Preset

// DefaultPresets point to public RPC nodes.
var DefaultPresets = Presets{
	"polkadot": {
		Relay: "wss://rpc.polkadot.io",
		Parachains: map[string]string{
			"polkadotAh": "wss://polkadot-asset-hub-rpc.polkadot.io",
		},
	},
	"kusama": {
		Relay: "wss://kusama-rpc.polkadot.io",
		Parachains: map[string]string{
			"kusamaAh": "wss://kusama-asset-hub-rpc.polkadot.io",
		},
	},
	"westend": {
		Relay: "wss://westend-rpc.polkadot.io",
		Parachains: map[string]string{
			"westendAh": "wss://westend-asset-hub-rpc.polkadot.io",
		},
	},
}

// Endpoints returns the relay and parachain websocket URLs of a selection.
// When a selection declares no parachain, both URLs are the same.
func (p Presets) Endpoints(sel Selection) (relay, para string, err error) {
	if err := sel.Validate(); err != nil {
		return "", "", err
	}
	if sel.Type == ChainRPC {
		para = sel.Para
		if para == "" {
			para = sel.Relay
		}
		return sel.Relay, para, nil
	}

	preset, ok := p[sel.Relay]
	if !ok {
		return "", "", errors.Wrapf(errors.ErrNotFound, "chain %q", sel.Relay)
	}
	if sel.Para == "" {
		return preset.Relay, preset.Relay, nil
	}
	para, ok = preset.Parachains[sel.Para]
	if !ok {
		return "", "", errors.Wrapf(errors.ErrNotFound, "parachain %q of %q", sel.Para, sel.Relay)
	}
	return preset.Relay, para, nil
}

// Names returns the relay chain names that have at least one parachain, in
// alphabetical order.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name, preset := range p {
		if len(preset.Parachains) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DefaultParachain returns the parachain a relay chain switches to when the
// current one is not available on it.
func (p Presets) DefaultParachain(relay, current string) string {
	paras := p[relay].Parachains
	if _, ok := paras[current]; ok {
		return current
	}
	names := make([]string, 0, len(paras))
	for name := range paras {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
