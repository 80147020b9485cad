package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/util"
)

// Telnet command bytes (RFC 854).
const (
	telnetSE   = 240
	telnetSB   = 250
	telnetWILL = 251
	telnetWONT = 252
	telnetDO   = 253
	telnetDONT = 254
	telnetIAC  = 255
)

const (
	tnData = iota
	tnIAC
	tnOption
	tnSub
	tnSubIAC
)

// telnetTransport is a plain-text shell. Every option the server proposes is
// refused, so the stream stays in NVT mode with server-side echo.
type telnetTransport struct {
	conn  net.Conn
	alive atomic.Bool

	rmu     sync.Mutex
	state   int
	cmd     byte
	raw     []byte
	pending []byte

	wmu sync.Mutex
}

func newTelnetTransport(conn net.Conn) *telnetTransport {
	t := &telnetTransport{conn: conn, raw: make([]byte, readBufSize)}
	t.alive.Store(true)
	return t
}

func (t *telnetTransport) Alive() bool { return t.alive.Load() }

func (t *telnetTransport) Close() error {
	t.alive.Store(false)
	return t.conn.Close()
}

// Read returns data bytes with telnet negotiation stripped.
func (t *telnetTransport) Read(p []byte) (int, error) {
	t.rmu.Lock()
	defer t.rmu.Unlock()

	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}

	for {
		limit := len(p)
		if limit > len(t.raw) {
			limit = len(t.raw)
		}
		n, err := t.conn.Read(t.raw[:limit])
		out := t.filter(t.raw[:n], p[:0])
		if err != nil {
			t.alive.Store(false)
			return len(out), err
		}
		if len(out) > 0 {
			return len(out), nil
		}
	}
}

// filter appends the data bytes of in to out, answering option requests.
// out never grows beyond len(in), so it fits the caller's buffer.
func (t *telnetTransport) filter(in, out []byte) []byte {
	for _, b := range in {
		switch t.state {
		case tnData:
			if b == telnetIAC {
				t.state = tnIAC
			} else {
				out = append(out, b)
			}
		case tnIAC:
			switch b {
			case telnetIAC:
				out = append(out, b)
				t.state = tnData
			case telnetWILL, telnetWONT, telnetDO, telnetDONT:
				t.cmd = b
				t.state = tnOption
			case telnetSB:
				t.state = tnSub
			default:
				t.state = tnData
			}
		case tnOption:
			switch t.cmd {
			case telnetDO:
				t.reply(telnetWONT, b)
			case telnetWILL:
				t.reply(telnetDONT, b)
			}
			t.state = tnData
		case tnSub:
			if b == telnetIAC {
				t.state = tnSubIAC
			}
		case tnSubIAC:
			if b == telnetSE {
				t.state = tnData
			} else {
				t.state = tnSub
			}
		}
	}
	return out
}

func (t *telnetTransport) reply(cmd, opt byte) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	t.conn.Write([]byte{telnetIAC, cmd, opt})
}

// Write sends p with IAC escaped and bare LF expanded to CR LF.
func (t *telnetTransport) Write(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+8)
	for _, b := range p {
		switch b {
		case telnetIAC:
			buf = append(buf, telnetIAC, telnetIAC)
		case '\n':
			buf = append(buf, '\r', '\n')
		default:
			buf = append(buf, b)
		}
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := t.conn.Write(buf); err != nil {
		t.alive.Store(false)
		return 0, err
	}
	return len(p), nil
}

func dialTelnet(ctx context.Context, dev *inventory.Device) (Transport, error) {
	endpoint := dev.Endpoint()

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, &util.ConnectError{Endpoint: endpoint, Err: err}
	}

	t := newTelnetTransport(conn)
	if err := t.login(ctx, dev); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// login answers the login and password prompts. Whatever follows the
// password (banner, first prompt) is kept for the first Read.
func (t *telnetTransport) login(ctx context.Context, dev *inventory.Device) error {
	endpoint := dev.Endpoint()
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(deadline)
		defer t.conn.SetReadDeadline(time.Time{})
	}

	var acc []byte
	buf := make([]byte, readBufSize)
	sentUser, sentPass := false, false

	for {
		n, err := t.Read(buf)
		acc = append(acc, buf[:n]...)
		tail := strings.ToLower(strings.TrimSpace(lastLine(acc)))

		switch {
		case sentPass && bytes.Contains(bytes.ToLower(acc), []byte("incorrect")):
			return &util.AuthError{Endpoint: endpoint, User: dev.Username, Err: errors.New("login incorrect")}
		case sentPass && HasPrompt(acc):
			t.pending = acc
			return nil
		case !sentUser && (strings.HasSuffix(tail, "login:") || strings.HasSuffix(tail, "username:")):
			if _, werr := t.Write([]byte(dev.Username + "\n")); werr != nil {
				return &util.ConnectError{Endpoint: endpoint, Err: werr}
			}
			sentUser, acc = true, acc[:0]
		case sentUser && !sentPass && strings.HasSuffix(tail, "password:"):
			if _, werr := t.Write([]byte(dev.Password + "\n")); werr != nil {
				return &util.ConnectError{Endpoint: endpoint, Err: werr}
			}
			sentPass, acc = true, acc[:0]
		}

		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return &util.ConnectError{Endpoint: endpoint, Err: fmt.Errorf("telnet login timed out")}
			}
			return &util.ConnectError{Endpoint: endpoint, Err: fmt.Errorf("telnet login: %w", err)}
		}
	}
}

func lastLine(b []byte) string {
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
