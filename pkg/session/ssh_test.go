package session

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/util"
)

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	s, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// sshServer serves a Junos-like shell on every accepted connection and
// reports the first line each shell receives on got.
func sshServer(t *testing.T, hostKey ssh.Signer, got chan<- string) *inventory.Device {
	t.Helper()
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	config.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, config, got)
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return &inventory.Device{
		Name: "r1", Address: host, Port: p,
		Transport: inventory.TransportSSH, Username: "admin", Password: "secret",
	}
}

func serveSSH(conn net.Conn, config *ssh.ServerConfig, got chan<- string) {
	defer conn.Close()
	sc, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				ok := req.Type == "pty-req" || req.Type == "shell"
				req.Reply(ok, nil)
				if req.Type == "shell" {
					ch.Write([]byte("--- JUNOS 21.4R3\r\nadmin@r1> "))
				}
			}
		}()
		go func() {
			defer ch.Close()
			line, err := bufio.NewReader(ch).ReadString('\n')
			if err == nil {
				got <- strings.TrimSpace(line)
			}
		}()
	}
}

func readPrompt(t *testing.T, tr Transport) string {
	t.Helper()
	var out []byte
	buf := make([]byte, 1024)
	for !HasPrompt(out) {
		n, err := tr.Read(buf)
		if err != nil {
			t.Fatalf("Read() error = %v (got %q)", err, out)
		}
		out = append(out, buf[:n]...)
	}
	return string(out)
}

func TestSSH_TrustOnFirstUse(t *testing.T) {
	got := make(chan string, 2)
	dev := sshServer(t, newSigner(t), got)
	known := filepath.Join(t.TempDir(), "ssh", "known_hosts")
	d := NewNetDialer(known)

	for i := 0; i < 2; i++ {
		tr, err := d.Dial(context.Background(), dev)
		if err != nil {
			t.Fatalf("dial %d: error = %v", i, err)
		}
		if out := readPrompt(t, tr); !strings.Contains(out, "JUNOS") {
			t.Errorf("banner = %q", out)
		}
		if !tr.Alive() {
			t.Error("transport not alive after dial")
		}
		if _, err := tr.Write([]byte("show version\n")); err != nil {
			t.Fatal(err)
		}
		if line := <-got; line != "show version" {
			t.Errorf("server got %q", line)
		}
		tr.Close()
		if tr.Alive() {
			t.Error("transport alive after Close")
		}
	}

	data, err := os.ReadFile(known)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(util.NonEmptyLines(string(data))); n != 1 {
		t.Errorf("known_hosts has %d entries, want 1:\n%s", n, data)
	}
}

func TestSSH_HostKeyMismatch(t *testing.T) {
	dev := sshServer(t, newSigner(t), make(chan string, 1))
	known := filepath.Join(t.TempDir(), "known_hosts")
	if err := appendKnownHost(known, dev.Endpoint(), newSigner(t).PublicKey()); err != nil {
		t.Fatal(err)
	}

	_, err := NewNetDialer(known).Dial(context.Background(), dev)
	if !errors.Is(err, util.ErrConnect) {
		t.Fatalf("Dial() error = %v, want ErrConnect", err)
	}
	if errors.Is(err, util.ErrAuth) {
		t.Error("host key mismatch reported as auth failure")
	}
}

func TestSSH_AuthFailure(t *testing.T) {
	dev := sshServer(t, newSigner(t), make(chan string, 1))
	dev.Password = "wrong"

	_, err := NewNetDialer("").Dial(context.Background(), dev)
	if !errors.Is(err, util.ErrAuth) {
		t.Fatalf("Dial() error = %v, want ErrAuth", err)
	}
	var ae *util.AuthError
	if !errors.As(err, &ae) || ae.User != "admin" {
		t.Errorf("AuthError = %+v", ae)
	}
}
