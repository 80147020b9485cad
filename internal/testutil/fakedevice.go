// Package testutil provides a simulated Junos CLI for tests. FakeDevice
// implements session.Dialer; each Dial starts a shell on one end of a
// net.Pipe and returns the other end as the transport.
package testutil

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/session"
	"github.com/newtron-network/junotron/pkg/util"
)

// FakeDevice simulates the subset of the Junos CLI junotron drives:
// display-set config shows with match filters, exclusive configuration mode
// with a candidate, commit, and screen-length.
type FakeDevice struct {
	Hostname string
	User     string

	// Failure injection. Set before dialing.
	FailDial    error             // Dial returns a ConnectError wrapping this
	FailAuth    bool              // Dial returns an AuthError
	Silent      bool              // after the banner, never answer
	Flood       bool              // answer every command with endless output
	NoPrompt    bool              // answer commands but never print a prompt
	Reject      map[string]string // command substring -> error text printed instead
	CommitFails bool              // commit prints an error
	DropCommits bool              // commit prints "commit complete" but keeps the old config
	Delay       time.Duration     // pause before each answer

	mu        sync.Mutex
	config    []string
	received  []string
	dials     int
	conns     []net.Conn
	committed int
}

// NewFakeDevice returns a device with the given committed config lines.
func NewFakeDevice(config ...string) *FakeDevice {
	return &FakeDevice{
		Hostname: "fake",
		User:     "admin",
		config:   append([]string(nil), config...),
		Reject:   map[string]string{},
	}
}

// Config returns the committed configuration, sorted.
func (d *FakeDevice) Config() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]string(nil), d.config...)
	sort.Strings(out)
	return out
}

// SetConfig replaces the committed configuration.
func (d *FakeDevice) SetConfig(lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = append([]string(nil), lines...)
}

// Received returns every command line the device has read, in order.
func (d *FakeDevice) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// Dials returns how many successful connections were made.
func (d *FakeDevice) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Commits returns how many commits were applied.
func (d *FakeDevice) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed
}

// DropConnections closes every open connection from the device side.
func (d *FakeDevice) DropConnections() {
	d.mu.Lock()
	conns := d.conns
	d.conns = nil
	d.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Device returns an inventory entry pointing at this fake.
func (d *FakeDevice) Device(name string) *inventory.Device {
	return &inventory.Device{
		Name:      name,
		Address:   "192.0.2.1",
		Transport: inventory.TransportSSH,
		Port:      22,
		Username:  d.User,
		Password:  "secret",
	}
}

// Dial implements session.Dialer.
func (d *FakeDevice) Dial(ctx context.Context, dev *inventory.Device) (session.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, &util.ConnectError{Endpoint: dev.Endpoint(), Err: err}
	}
	if d.FailDial != nil {
		return nil, &util.ConnectError{Endpoint: dev.Endpoint(), Err: d.FailDial}
	}
	if d.FailAuth {
		return nil, &util.AuthError{Endpoint: dev.Endpoint(), User: dev.Username, Err: errors.New("ssh: unable to authenticate")}
	}

	client, server := net.Pipe()
	d.mu.Lock()
	d.dials++
	d.conns = append(d.conns, server)
	d.mu.Unlock()

	c := &fakeConn{Conn: client}
	c.alive.Store(true)
	go func() {
		d.serve(server)
		c.alive.Store(false)
	}()
	return c, nil
}

type fakeConn struct {
	net.Conn
	alive atomic.Bool
}

func (c *fakeConn) Alive() bool { return c.alive.Load() }

func (c *fakeConn) Close() error {
	c.alive.Store(false)
	return c.Conn.Close()
}

// shell is the per-connection CLI state.
type shell struct {
	d         *FakeDevice
	conn      net.Conn
	inConfig  bool
	candidate []string
}

func (d *FakeDevice) serve(conn net.Conn) {
	defer conn.Close()
	sh := &shell{d: d, conn: conn}

	if !sh.write("--- JUNOS 21.4R3 fake built 2024-01-01\r\n\r\n" + sh.prompt()) {
		return
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		d.mu.Lock()
		d.received = append(d.received, cmd)
		d.mu.Unlock()

		if d.Silent {
			continue
		}
		if d.Delay > 0 {
			time.Sleep(d.Delay)
		}
		// PTY echo.
		if !sh.write(cmd + "\r\n") {
			return
		}
		if d.Flood {
			sh.flood()
			return
		}

		out, closeAfter := sh.handle(cmd)
		if out != "" {
			out = strings.ReplaceAll(strings.TrimRight(out, "\n"), "\n", "\r\n") + "\r\n"
		}
		if closeAfter {
			sh.write(out)
			return
		}
		if !d.NoPrompt {
			if sh.inConfig {
				out += "\r\n[edit]\r\n"
			}
			out += sh.prompt()
		}
		if !sh.write(out) {
			return
		}
	}
}

func (sh *shell) prompt() string {
	if sh.inConfig {
		return sh.d.User + "@" + sh.d.Hostname + "# "
	}
	return sh.d.User + "@" + sh.d.Hostname + "> "
}

func (sh *shell) write(s string) bool {
	if s == "" {
		return true
	}
	_, err := sh.conn.Write([]byte(s))
	return err == nil
}

func (sh *shell) flood() {
	for i := 0; ; i++ {
		if !sh.write(fmt.Sprintf("flood line %d with no prompt in sight\r\n", i)) {
			return
		}
	}
}

// handle returns the command output and whether the device hangs up.
func (sh *shell) handle(cmd string) (string, bool) {
	d := sh.d
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", false
	}
	for sub, msg := range d.Reject {
		if strings.Contains(cmd, sub) {
			return msg, false
		}
	}

	if sh.inConfig {
		return sh.handleConfig(cmd, fields)
	}

	switch {
	case strings.HasPrefix(cmd, "set cli screen-length "):
		return "Screen length set to " + fields[len(fields)-1], false
	case cmd == "configure exclusive" || cmd == "configure":
		sh.inConfig = true
		d.mu.Lock()
		sh.candidate = append([]string(nil), d.config...)
		d.mu.Unlock()
		if cmd == "configure exclusive" {
			return "warning: uncommitted changes will be discarded on exit\nEntering configuration mode", false
		}
		return "Entering configuration mode", false
	case strings.HasPrefix(cmd, "show configuration"):
		d.mu.Lock()
		lines := append([]string(nil), d.config...)
		d.mu.Unlock()
		return showConfig(cmd, lines), false
	case strings.HasPrefix(cmd, "show route"):
		return showRoute(cmd), false
	case strings.HasPrefix(cmd, "show version"):
		return "Hostname: " + d.Hostname + "\nModel: vmx\nJunos: 21.4R3", false
	case cmd == "exit" || cmd == "quit":
		return "", true
	}
	return syntaxError(cmd, "unknown command."), false
}

func (sh *shell) handleConfig(cmd string, fields []string) (string, bool) {
	d := sh.d
	switch fields[0] {
	case "set":
		if len(fields) < 3 {
			return syntaxError(cmd, "missing argument."), false
		}
		line := strings.Join(fields, " ")
		for _, c := range sh.candidate {
			if c == line {
				return "", false
			}
		}
		sh.candidate = append(sh.candidate, line)
		return "", false
	case "delete":
		if len(fields) < 2 {
			return syntaxError(cmd, "missing argument."), false
		}
		target := "set " + strings.Join(fields[1:], " ")
		kept := sh.candidate[:0:0]
		removed := 0
		for _, c := range sh.candidate {
			if c == target || strings.HasPrefix(c, target+" ") {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		sh.candidate = kept
		if removed == 0 {
			return "warning: statement not found", false
		}
		return "", false
	case "commit":
		if d.CommitFails {
			return "error: configuration check-out failed", false
		}
		d.mu.Lock()
		if !d.DropCommits {
			d.config = append([]string(nil), sh.candidate...)
		}
		d.committed++
		d.mu.Unlock()
		return "commit complete", false
	case "exit", "quit":
		if len(fields) == 1 || fields[1] == "configuration-mode" {
			sh.inConfig = false
			sh.candidate = nil
			return "Exiting configuration mode", false
		}
	case "show":
		return showConfig("show configuration "+strings.Join(fields[1:], " "), sh.candidate), false
	}
	return syntaxError(cmd, "syntax error."), false
}

// showConfig renders "show configuration <path> | display set [| match x] | no-more".
func showConfig(cmd string, lines []string) string {
	parts := strings.Split(cmd, "|")
	path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "show configuration"))
	prefix := "set "
	if path != "" {
		prefix = "set " + path + " "
	}

	var matches []string
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "match ") {
			matches = append(matches, strings.Trim(strings.TrimSpace(strings.TrimPrefix(p, "match ")), `"`))
		}
	}

	var out []string
	for _, l := range lines {
		if !strings.HasPrefix(l, prefix) {
			continue
		}
		ok := true
		for _, m := range matches {
			if !strings.Contains(l, m) {
				ok = false
			}
		}
		if ok {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return strings.Join(out, "\n")
}

func showRoute(cmd string) string {
	fields := strings.Fields(strings.Split(cmd, "|")[0])
	if len(fields) < 3 {
		return "\ninet.0: 3 destinations, 3 routes (3 active, 0 holddown, 0 hidden)"
	}
	prefix := fields[2]
	if !util.IsValidIPv4OrCIDR(prefix) {
		return syntaxError(cmd, "invalid value.")
	}
	return "\ninet.0: 3 destinations, 3 routes (3 active, 0 holddown, 0 hidden)\n+ = Active Route, - = Last Active, * = Both\n\n" +
		prefix + "    *[BGP/170] 1w2d 03:04:05, localpref 100\n                      AS path: 64500 I, validation-state: unverified\n                    >  to 203.0.113.1 via ge-0/0/0.0"
}

func syntaxError(cmd, msg string) string {
	return strings.Repeat(" ", len(cmd)) + "^\n" + msg
}
