package session

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/util"
)

// DefaultConnectTimeout bounds TCP connect plus login.
const DefaultConnectTimeout = 10 * time.Second

// NetDialer dials real devices over SSH or telnet according to the
// device's transport.
type NetDialer struct {
	// Timeout bounds connect and authentication. Zero means DefaultConnectTimeout.
	Timeout time.Duration
	// KnownHostsPath, if set, is the trust-on-first-use host key store.
	KnownHostsPath string
	// Term is the PTY terminal type requested over SSH.
	Term string
	// Width and Height size the PTY.
	Width, Height int
}

// NewNetDialer returns a NetDialer with defaults.
func NewNetDialer(knownHostsPath string) *NetDialer {
	return &NetDialer{
		Timeout:        DefaultConnectTimeout,
		KnownHostsPath: knownHostsPath,
		Term:           "vt100",
		Width:          200,
		Height:         24,
	}
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, dev *inventory.Device) (Transport, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch dev.Transport {
	case inventory.TransportSSH:
		return d.dialSSH(ctx, dev)
	case inventory.TransportTelnet:
		return dialTelnet(ctx, dev)
	default:
		return nil, &util.ConnectError{
			Endpoint: dev.Endpoint(),
			Err:      fmt.Errorf("unsupported transport %q", dev.Transport),
		}
	}
}
