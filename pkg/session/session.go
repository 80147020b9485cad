// Package session owns the interactive shell connection to a device: dialing
// it over SSH or telnet, writing command lines, and collecting output until
// the device goes quiet, shows a prompt, or a deadline passes.
package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/metrics"
	"github.com/newtron-network/junotron/pkg/util"
)

// Read bounds applied when a caller passes zero.
const (
	DefaultIdleTimeout    = 10 * time.Second
	DefaultOverallTimeout = 60 * time.Second
)

const readBufSize = 4096

// Transport is an authenticated connection carrying one interactive shell.
// Read returns device output; Write sends keystrokes.
type Transport interface {
	io.ReadWriter
	// Alive reports whether the underlying connection is still up.
	Alive() bool
	Close() error
}

// ReadOptions bounds a single ReadUntilQuiescent call.
type ReadOptions struct {
	// Idle is how long the stream may stay silent before the read returns.
	Idle time.Duration
	// Overall caps the whole read regardless of activity.
	Overall time.Duration
	// StopAtPrompt returns as soon as accumulated output ends at a prompt.
	// When set, an idle expiry without a prompt is reported as TimedOut.
	StopAtPrompt bool
	// OnChunk, if set, receives every chunk as it arrives.
	OnChunk func([]byte)
}

// ReadResult is the output of one ReadUntilQuiescent call.
type ReadResult struct {
	Data       []byte
	PromptSeen bool
	TimedOut   bool
}

// Session is one live interactive shell. It is not safe for concurrent
// command use; the executor serializes access.
type Session struct {
	ID     string
	device *inventory.Device
	tr     Transport
	log    *logrus.Entry
	m      *metrics.Metrics

	chunks chan []byte
	done   chan struct{}

	live      atomic.Bool
	closeOnce sync.Once

	errMu   sync.Mutex
	readErr error

	opened time.Time
}

func newSession(dev *inventory.Device, tr Transport, m *metrics.Metrics) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		device: dev,
		tr:     tr,
		m:      m,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		opened: time.Now(),
	}
	s.log = util.WithSession(dev.Name, s.ID)
	s.live.Store(true)
	go s.pump()
	return s
}

// pump copies transport output onto the chunk channel until the transport
// fails or the session is closed. The channel is closed on exit.
func (s *Session) pump() {
	defer close(s.chunks)
	buf := make([]byte, readBufSize)
	for {
		n, err := s.tr.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.errMu.Lock()
			s.readErr = err
			s.errMu.Unlock()
			return
		}
	}
}

func (s *Session) pumpErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.readErr == nil {
		return io.EOF
	}
	return s.readErr
}

// Device returns the endpoint this session is connected to.
func (s *Session) Device() *inventory.Device {
	return s.device
}

// Key returns the endpoint key the session was opened for.
func (s *Session) Key() string {
	return s.device.Key()
}

// IsLive reports whether the session can still carry commands.
func (s *Session) IsLive() bool {
	return s.live.Load() && s.tr.Alive()
}

// Send writes text followed by a newline. A write failure invalidates the
// session.
func (s *Session) Send(text string) error {
	if !s.live.Load() {
		return &util.IOError{Endpoint: s.device.Endpoint(), Op: "write", Err: util.ErrNotConnected}
	}
	s.log.Debugf("send: %s", text)
	if _, err := io.WriteString(s.tr, text+"\n"); err != nil {
		s.invalidate("write", err)
		return &util.IOError{Endpoint: s.device.Endpoint(), Op: "write", Err: err}
	}
	return nil
}

// ReadUntilQuiescent accumulates output until the stream has been silent for
// opts.Idle, opts.Overall has elapsed, ctx is done, or (with StopAtPrompt)
// the output ends at a prompt. Zero timeouts take the package defaults, so a
// read is always bounded.
//
// When a prompt is matched, chunks already queued behind it are drained into
// the result as well; nothing read is discarded.
func (s *Session) ReadUntilQuiescent(ctx context.Context, opts ReadOptions) (ReadResult, error) {
	if !s.live.Load() {
		return ReadResult{}, &util.IOError{Endpoint: s.device.Endpoint(), Op: "read", Err: util.ErrNotConnected}
	}

	idle := opts.Idle
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	overall := opts.Overall
	if overall <= 0 {
		overall = DefaultOverallTimeout
	}
	deadlineAt := time.Now().Add(overall)

	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()
	overallTimer := time.NewTimer(overall)
	defer overallTimer.Stop()

	var buf bytes.Buffer
	accept := func(chunk []byte) {
		buf.Write(chunk)
		s.m.Read(len(chunk))
		if opts.OnChunk != nil {
			opts.OnChunk(chunk)
		}
	}

	for {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				err := s.pumpErr()
				s.invalidate("read", err)
				return ReadResult{Data: buf.Bytes()}, &util.IOError{Endpoint: s.device.Endpoint(), Op: "read", Err: err}
			}
			accept(chunk)
			if opts.StopAtPrompt && HasPrompt(buf.Bytes()) {
				s.drainQueued(accept)
				return ReadResult{Data: buf.Bytes(), PromptSeen: true}, nil
			}
			if !time.Now().Before(deadlineAt) {
				return ReadResult{Data: buf.Bytes(), PromptSeen: HasPrompt(buf.Bytes()), TimedOut: true}, nil
			}
			idleTimer.Reset(idle)

		case <-idleTimer.C:
			prompt := HasPrompt(buf.Bytes())
			return ReadResult{Data: buf.Bytes(), PromptSeen: prompt, TimedOut: opts.StopAtPrompt && !prompt}, nil

		case <-overallTimer.C:
			return ReadResult{Data: buf.Bytes(), PromptSeen: HasPrompt(buf.Bytes()), TimedOut: true}, nil

		case <-ctx.Done():
			return ReadResult{Data: buf.Bytes()}, ctx.Err()
		}
	}
}

func (s *Session) drainQueued(accept func([]byte)) {
	for {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				return
			}
			accept(chunk)
		default:
			return
		}
	}
}

func (s *Session) invalidate(op string, err error) {
	if errors.Is(err, io.EOF) {
		s.log.Warnf("%s: connection closed by device", op)
	} else {
		s.log.Warnf("%s failed, invalidating session: %v", op, err)
	}
	s.Close()
}

// Close tears the session down. It is idempotent; close-time errors are
// logged and never returned.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.live.Store(false)
		close(s.done)
		if err := s.tr.Close(); err != nil {
			s.log.Debugf("close: %v", err)
		}
		s.m.SessionClosed()
		s.log.Debugf("session closed after %s", time.Since(s.opened).Round(time.Millisecond))
	})
}
