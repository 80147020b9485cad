package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/metrics"
	"github.com/newtron-network/junotron/pkg/util"
)

// Dialer connects, authenticates and allocates an interactive shell.
// Failures are *util.ConnectError or *util.AuthError.
type Dialer interface {
	Dial(ctx context.Context, dev *inventory.Device) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, dev *inventory.Device) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, dev *inventory.Device) (Transport, error) {
	return f(ctx, dev)
}

// Manager owns at most one live Session. Opening a different endpoint closes
// the current session first, so commands can never land on the wrong device.
type Manager struct {
	mu      sync.Mutex
	dialer  Dialer
	current *Session
	m       *metrics.Metrics
	onChunk func(command string, data []byte)

	bannerIdle    time.Duration
	bannerOverall time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMetrics records session metrics on m.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.m = m }
}

// WithOnChunk passes the login banner and first prompt to fn, labelled
// with the command name "login".
func WithOnChunk(fn func(command string, data []byte)) ManagerOption {
	return func(mgr *Manager) { mgr.onChunk = fn }
}

// WithBannerWait bounds the post-login banner drain.
func WithBannerWait(idle, overall time.Duration) ManagerOption {
	return func(mgr *Manager) {
		mgr.bannerIdle = idle
		mgr.bannerOverall = overall
	}
}

// NewManager returns a Manager that dials through d.
func NewManager(d Dialer, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		dialer:        d,
		bannerIdle:    2 * time.Second,
		bannerOverall: 10 * time.Second,
	}
	for _, o := range opts {
		o(mgr)
	}
	return mgr
}

// Open returns the live session for dev, reusing the current one when it is
// live and was opened for the same endpoint. Otherwise the current session
// (if any) is closed before dialing.
func (mgr *Manager) Open(ctx context.Context, dev *inventory.Device) (*Session, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if cur := mgr.current; cur != nil {
		if cur.Key() == dev.Key() && cur.IsLive() {
			return cur, nil
		}
		if cur.Key() != dev.Key() {
			util.WithDevice(cur.device.Name).Infof("switching to %s, closing session", dev.Name)
		}
		cur.Close()
		mgr.current = nil
	}

	log := util.WithDevice(dev.Name)
	log.Debugf("dialing %s over %s", dev.Endpoint(), dev.Transport)

	tr, err := mgr.dialer.Dial(ctx, dev)
	if err != nil {
		mgr.m.SessionOpened(dev.Transport, openResult(err))
		return nil, err
	}

	s := newSession(dev, tr, mgr.m)
	mgr.m.SessionOpened(dev.Transport, "ok")

	// Consume the banner and first prompt so they do not prefix the
	// first command's output.
	ro := ReadOptions{
		Idle:         mgr.bannerIdle,
		Overall:      mgr.bannerOverall,
		StopAtPrompt: true,
	}
	if mgr.onChunk != nil {
		ro.OnChunk = func(c []byte) { mgr.onChunk("login", c) }
	}
	banner, err := s.ReadUntilQuiescent(ctx, ro)
	if err != nil {
		s.Close()
		return nil, err
	}
	if !banner.PromptSeen {
		log.Warnf("no prompt after login (%d bytes of banner)", len(banner.Data))
	} else {
		log.Debugf("logged in at prompt %q", PromptLine(banner.Data))
	}

	log.Infof("session %s open to %s", s.ID, dev.Endpoint())
	mgr.current = s
	return s, nil
}

// Current returns the current session, or nil.
func (mgr *Manager) Current() *Session {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.current
}

// Close closes the current session, if any.
func (mgr *Manager) Close() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.current != nil {
		mgr.current.Close()
		mgr.current = nil
	}
}

func openResult(err error) string {
	if errors.Is(err, util.ErrAuth) {
		return "auth_error"
	}
	return "connect_error"
}
