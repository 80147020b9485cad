// Package executor drives commands through a session: one at a time, with
// settle delays between them, and with the exclusive-configure wrapper for
// transactional edits.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newtron-network/junotron/pkg/metrics"
	"github.com/newtron-network/junotron/pkg/session"
	"github.com/newtron-network/junotron/pkg/util"
)

// Default timings.
const (
	DefaultIdleTimeout    = 10 * time.Second
	DefaultQuietPeriod    = 1 * time.Second
	DefaultOverallTimeout = 60 * time.Second
	DefaultSettleDelay    = 500 * time.Millisecond
	DefaultCommitDelay    = 1 * time.Second
)

// Transaction wrapper commands.
const (
	CmdConfigureExclusive = "configure exclusive"
	CmdCommit             = "commit"
	CmdExit               = "exit"
)

// CommitComplete is what the device prints after a successful commit.
const CommitComplete = "commit complete"

var (
	// ErrCommandTimeout is the cause in a SequenceError when no prompt arrived.
	ErrCommandTimeout = errors.New("timed out waiting for prompt")
	// ErrDeviceRejected is the cause when output carries a CLI error.
	ErrDeviceRejected = errors.New("device rejected command")
	// ErrCommitIncomplete is the cause when commit output lacks "commit complete".
	ErrCommitIncomplete = errors.New("commit did not complete")
)

// deviceErrorMarkers start a line that marks a rejected command.
var deviceErrorMarkers = []string{
	"error:",
	"syntax error",
	"unknown command",
	"missing argument",
	"invalid value",
}

// ChunkFunc receives raw output as it arrives, tagged with its command.
type ChunkFunc func(command string, chunk []byte)

// Captured is the output of one command.
type Captured struct {
	Command    string
	Output     string
	PromptSeen bool
	TimedOut   bool
	Duration   time.Duration
}

// DeviceError returns the first line of Output that starts with a CLI error
// marker, or "". The echoed command line is not considered, and a marker
// inside configuration text (a quoted description) does not count.
func (c Captured) DeviceError() string {
	cmd := strings.TrimSpace(c.Command)
	for _, line := range strings.Split(c.Output, "\n") {
		line = strings.TrimSpace(line)
		if cmd != "" && strings.HasSuffix(line, cmd) {
			continue
		}
		lower := strings.ToLower(line)
		for _, m := range deviceErrorMarkers {
			if strings.HasPrefix(lower, m) {
				return line
			}
		}
	}
	return ""
}

// Verifier re-checks device state after a commit. It reports false when the
// expected change cannot be confirmed.
type Verifier func(ctx context.Context) (bool, error)

// Options tunes the executor. Zero fields take defaults.
type Options struct {
	IdleTimeout    time.Duration
	QuietPeriod    time.Duration
	OverallTimeout time.Duration
	SettleDelay    time.Duration
	CommitDelay    time.Duration
	OnChunk        ChunkFunc
	Metrics        *metrics.Metrics
	// Sleep replaces the inter-command delay, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Executor serializes all command I/O. It is safe for concurrent use; callers
// queue on an internal lock.
type Executor struct {
	mu   sync.Mutex
	opts Options
}

// New returns an Executor with opts applied over defaults.
func New(opts Options) *Executor {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.OverallTimeout <= 0 {
		opts.OverallTimeout = DefaultOverallTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	} else if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.CommitDelay < 0 {
		opts.CommitDelay = 0
	} else if opts.CommitDelay == 0 {
		opts.CommitDelay = DefaultCommitDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Executor{opts: opts}
}

// IsPagingCommand reports whether cmd reconfigures CLI paging. Such commands
// print no reliable prompt-terminated output and complete on quiescence.
func IsPagingCommand(cmd string) bool {
	return strings.HasPrefix(strings.TrimSpace(cmd), "set cli screen-length")
}

func isCommit(cmd string) bool {
	return strings.Contains(cmd, CmdCommit)
}

// RunOne sends command and collects its output. Ordinary commands wait for a
// prompt within IdleTimeout of silence; paging commands end after QuietPeriod
// of silence. Every chunk read is kept, in arrival order.
func (e *Executor) RunOne(ctx context.Context, s *session.Session, command string) (Captured, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runOne(ctx, s, command)
}

func (e *Executor) runOne(ctx context.Context, s *session.Session, command string) (Captured, error) {
	start := time.Now()
	c := Captured{Command: command}

	if err := s.Send(command); err != nil {
		e.opts.Metrics.CommandDone("io_error", time.Since(start))
		return c, err
	}

	ro := session.ReadOptions{
		Idle:         e.opts.IdleTimeout,
		Overall:      e.opts.OverallTimeout,
		StopAtPrompt: true,
	}
	if IsPagingCommand(command) {
		ro.Idle = e.opts.QuietPeriod
		ro.StopAtPrompt = false
	}
	if e.opts.OnChunk != nil {
		ro.OnChunk = func(chunk []byte) { e.opts.OnChunk(command, chunk) }
	}

	res, err := s.ReadUntilQuiescent(ctx, ro)
	c.Output = util.StripCR(string(res.Data))
	c.PromptSeen = res.PromptSeen
	c.TimedOut = res.TimedOut
	c.Duration = time.Since(start)

	switch {
	case err != nil:
		e.opts.Metrics.CommandDone("io_error", c.Duration)
	case c.TimedOut:
		e.opts.Metrics.CommandDone("timeout", c.Duration)
	case c.DeviceError() != "":
		e.opts.Metrics.CommandDone("device_error", c.Duration)
	default:
		e.opts.Metrics.CommandDone("ok", c.Duration)
	}
	return c, err
}

// RunSequence runs commands strictly in order with a settle delay after each
// (CommitDelay after commits). It stops at the first I/O error, timeout or
// device-reported error and returns the outputs collected so far together
// with a *util.SequenceError naming the failing index. Nothing is rolled back.
func (e *Executor) RunSequence(ctx context.Context, s *session.Session, commands []string) ([]Captured, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runSequence(ctx, s, commands)
}

func (e *Executor) runSequence(ctx context.Context, s *session.Session, commands []string) ([]Captured, error) {
	outputs := make([]Captured, 0, len(commands))
	for i, cmd := range commands {
		c, err := e.runOne(ctx, s, cmd)
		outputs = append(outputs, c)

		if err == nil && c.TimedOut && !IsPagingCommand(cmd) {
			err = ErrCommandTimeout
		}
		if err == nil {
			if msg := c.DeviceError(); msg != "" {
				err = fmt.Errorf("%w: %s", ErrDeviceRejected, msg)
			}
		}
		if err != nil {
			return outputs, &util.SequenceError{Index: i, Command: cmd, Err: err}
		}

		delay := e.opts.SettleDelay
		if isCommit(cmd) {
			delay = e.opts.CommitDelay
		}
		if err := e.opts.Sleep(ctx, delay); err != nil {
			return outputs, &util.SequenceError{Index: i, Command: cmd, Err: err}
		}
	}
	return outputs, nil
}

// Wrap returns edits inside the exclusive-configure transaction.
func Wrap(edits []string) []string {
	cmds := make([]string, 0, len(edits)+3)
	cmds = append(cmds, CmdConfigureExclusive)
	cmds = append(cmds, edits...)
	cmds = append(cmds, CmdCommit, CmdExit)
	return cmds
}

// RunTransaction applies edits as configure exclusive / edits / commit / exit,
// then calls verify (if non-nil). It returns false without error when the
// commit was accepted but verify could not confirm the change.
//
// If the sequence fails after entering configuration mode, the session is
// closed so the device discards the uncommitted candidate and releases the
// exclusive lock.
func (e *Executor) RunTransaction(ctx context.Context, s *session.Session, edits []string, verify Verifier) (bool, []Captured, error) {
	e.mu.Lock()
	cmds := Wrap(edits)
	log := util.WithSession(s.Device().Name, s.ID).WithField("operation", "transaction")
	log.Debugf("running %d edits", len(edits))

	outputs, err := e.runSequence(ctx, s, cmds)
	if err != nil {
		var seqErr *util.SequenceError
		if errors.As(err, &seqErr) && seqErr.Index > 0 && seqErr.Index < len(cmds)-1 {
			log.Warnf("transaction failed at %q, closing session to discard candidate", seqErr.Command)
			s.Close()
		}
		e.mu.Unlock()
		return false, outputs, err
	}

	commitOut := outputs[len(outputs)-2]
	if !strings.Contains(commitOut.Output, CommitComplete) {
		e.mu.Unlock()
		return false, outputs, &util.SequenceError{Index: len(cmds) - 2, Command: CmdCommit, Err: ErrCommitIncomplete}
	}
	e.mu.Unlock()

	if verify == nil {
		return true, outputs, nil
	}
	ok, err := verify(ctx)
	if err != nil {
		log.Warnf("verification failed: %v", err)
		return false, outputs, nil
	}
	if !ok {
		log.Warnf("verification could not confirm the change")
	}
	return ok, outputs, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
