package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/util"
)

// sshTransport is an interactive shell on a PTY inside one SSH connection.
type sshTransport struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
	alive  atomic.Bool
}

func (t *sshTransport) Read(p []byte) (int, error)  { return t.stdout.Read(p) }
func (t *sshTransport) Write(p []byte) (int, error) { return t.stdin.Write(p) }
func (t *sshTransport) Alive() bool                 { return t.alive.Load() }

func (t *sshTransport) Close() error {
	t.alive.Store(false)
	t.sess.Close()
	return t.client.Close()
}

func (d *NetDialer) dialSSH(ctx context.Context, dev *inventory.Device) (Transport, error) {
	endpoint := dev.Endpoint()

	hostKeyCallback, err := tofuHostKeyCallback(d.KnownHostsPath)
	if err != nil {
		return nil, &util.ConnectError{Endpoint: endpoint, Err: err}
	}

	password := dev.Password
	config := &ssh.ClientConfig{
		User: dev.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			// Junos commonly offers keyboard-interactive instead of password.
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
	}
	if deadline, ok := ctx.Deadline(); ok {
		config.Timeout = time.Until(deadline)
	}

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, &util.ConnectError{Endpoint: endpoint, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, endpoint, config)
	if err != nil {
		conn.Close()
		if isSSHAuthFailure(err) {
			return nil, &util.AuthError{Endpoint: endpoint, User: dev.Username, Err: err}
		}
		return nil, &util.ConnectError{Endpoint: endpoint, Err: fmt.Errorf("SSH handshake: %w", err)}
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	t, err := d.openShell(client)
	if err != nil {
		client.Close()
		return nil, &util.ConnectError{Endpoint: endpoint, Err: err}
	}

	go func() {
		client.Wait()
		t.alive.Store(false)
	}()
	return t, nil
}

func (d *NetDialer) openShell(client *ssh.Client) (*sshTransport, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("SSH session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	term, width, height := d.Term, d.Width, d.Height
	if term == "" {
		term = "vt100"
	}
	if width <= 0 {
		width = 200
	}
	if height <= 0 {
		height = 24
	}
	if err := sess.RequestPty(term, height, width, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	// A PTY merges stderr into stdout; nothing arrives here.
	sess.Stderr = io.Discard

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	t := &sshTransport{client: client, sess: sess, stdin: stdin, stdout: stdout}
	t.alive.Store(true)
	return t, nil
}

func isSSHAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

var knownHostsMu sync.Mutex

// tofuHostKeyCallback trusts unknown hosts on first use and records their key
// in path. A key that contradicts a recorded one is rejected. With an empty
// path every key is accepted with a warning.
func tofuHostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			util.Logger.Warnf("SSH %s: host key %s not verified (no known_hosts configured)",
				hostname, ssh.FingerprintSHA256(key))
			return nil
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("known_hosts dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	f.Close()

	known, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts %s: %w", path, err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := known(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}
		util.Logger.Warnf("SSH %s: unknown host key %s, trusting on first use",
			hostname, ssh.FingerprintSHA256(key))
		if err := appendKnownHost(path, hostname, key); err != nil {
			util.Logger.Warnf("SSH %s: could not record host key: %v", hostname, err)
		}
		return nil
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key))
	return err
}
