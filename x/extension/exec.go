package extension

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
)

// Exec is a Provider of wallets implemented as command line programs. A
// wallet program is called with the configured arguments followed by a
// command:
//
//	accounts         prints the shared accounts as a JSON list of
//	                 {"address": ..., "name": ...}
//	sign <address>   reads a hex encoded call from stdin and prints the hex
//	                 encoded signed transaction
//
// A program refusing a request exits with a non zero status and explains
// why on stderr.
type Exec struct {
	commands map[string][]string
}

var _ Provider = (*Exec)(nil)

// NewExec returns a provider of wallets by name. Each command is the
// program followed by its leading arguments.
func NewExec(commands map[string][]string) *Exec {
	cmds := make(map[string][]string, len(commands))
	for name, cmd := range commands {
		if len(cmd) > 0 {
			cmds[name] = append([]string(nil), cmd...)
		}
	}
	return &Exec{commands: cmds}
}

// ListAvailable returns the wallets whose program can be found.
func (e *Exec) ListAvailable() []string {
	var names []string
	for name, cmd := range e.commands {
		if _, err := exec.LookPath(cmd[0]); err == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (e *Exec) Connect(ctx context.Context, name string) (Handle, error) {
	cmd, ok := e.commands[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrConnectionRejected, "no wallet %q", name)
	}
	out, err := run(ctx, cmd, nil, "accounts")
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(out, &accounts); err != nil {
		return nil, errors.Wrapf(errors.ErrConnectionRejected, "malformed accounts of %q: %s", name, err)
	}
	for i, a := range accounts {
		if err := a.Address.Validate(); err != nil {
			return nil, errors.Wrapf(err, "account %d of %q", i, name)
		}
	}
	return &execHandle{cmd: cmd, accounts: accounts}, nil
}

func run(ctx context.Context, cmd []string, stdin []byte, args ...string) ([]byte, error) {
	argv := append(append([]string(nil), cmd[1:]...), args...)
	c := exec.CommandContext(ctx, cmd[0], argv...)
	if stdin != nil {
		c.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrTimeout, ctx.Err().Error())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.Wrapf(errors.ErrConnectionRejected, "%s %s: %s", cmd[0], args[0], msg)
	}
	return stdout.Bytes(), nil
}

// execHandle shares the accounts listed when connecting. A program has no
// way to announce changes, so subscribers are never notified.
type execHandle struct {
	cmd      []string
	accounts []Account

	mu     sync.Mutex
	closed bool
}

func (h *execHandle) Accounts() []Account {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	return append([]Account(nil), h.accounts...)
}

func (h *execHandle) Subscribe(fn func([]Account)) func() {
	return func() {}
}

func (h *execHandle) Signer(address msigproxy.Address) (client.Signer, error) {
	a, ok := FindAccount(h, address)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "account %s", address)
	}
	return &execSigner{handle: h, address: a.Address}, nil
}

func (h *execHandle) Disconnect() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *execHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type execSigner struct {
	handle  *execHandle
	address msigproxy.Address
}

func (s *execSigner) Address() msigproxy.Address {
	return s.address
}

func (s *execSigner) SignTx(ctx context.Context, call []byte) ([]byte, error) {
	if s.handle.isClosed() {
		return nil, errors.Wrap(errors.ErrConnectionLost, "wallet disconnected")
	}
	in := []byte("0x" + hex.EncodeToString(call) + "\n")
	out, err := run(ctx, s.handle.cmd, in, "sign", string(s.address))
	if err != nil {
		return nil, err
	}
	tx, err := msigproxy.ParseHex(strings.TrimSpace(string(out)))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "wallet returned a malformed transaction: %s", err)
	}
	if len(tx) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "wallet returned no transaction")
	}
	return tx, nil
}
