package executor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	fake "github.com/newtron-network/junotron/internal/testutil"
	"github.com/newtron-network/junotron/pkg/executor"
	"github.com/newtron-network/junotron/pkg/metrics"
	"github.com/newtron-network/junotron/pkg/session"
	"github.com/newtron-network/junotron/pkg/util"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newExec(t *testing.T, dev *fake.FakeDevice, opts executor.Options) (*executor.Executor, *session.Session) {
	t.Helper()
	mgr := session.NewManager(dev)
	s, err := mgr.Open(context.Background(), dev.Device("r1"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(mgr.Close)
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 2 * time.Second
	}
	if opts.QuietPeriod == 0 {
		opts.QuietPeriod = 200 * time.Millisecond
	}
	if opts.Sleep == nil {
		opts.Sleep = (&sleepRecorder{}).sleep
	}
	return executor.New(opts), s
}

func TestRunOne(t *testing.T) {
	dev := fake.NewFakeDevice("set policy-options prefix-list ISP-A 1.2.3.0/24")
	var chunks strings.Builder
	e, s := newExec(t, dev, executor.Options{
		OnChunk: func(cmd string, c []byte) {
			if cmd != "show configuration policy-options | display set | no-more" {
				t.Errorf("chunk tagged with %q", cmd)
			}
			chunks.Write(c)
		},
	})

	c, err := e.RunOne(context.Background(), s, "show configuration policy-options | display set | no-more")
	if err != nil {
		t.Fatalf("RunOne() error = %v", err)
	}
	if !c.PromptSeen || c.TimedOut {
		t.Errorf("c = prompt %v timeout %v", c.PromptSeen, c.TimedOut)
	}
	if strings.Contains(c.Output, "\r") {
		t.Error("Output should have CR stripped")
	}
	if !strings.Contains(c.Output, "set policy-options prefix-list ISP-A 1.2.3.0/24") {
		t.Errorf("Output = %q", c.Output)
	}
	if chunks.Len() == 0 {
		t.Error("OnChunk never called")
	}
}

func TestRunOne_PagingCommandEndsOnQuiescence(t *testing.T) {
	dev := fake.NewFakeDevice()
	dev.NoPrompt = true
	e, s := newExec(t, dev, executor.Options{})

	c, err := e.RunOne(context.Background(), s, "set cli screen-length 0")
	if err != nil {
		t.Fatal(err)
	}
	if c.TimedOut {
		t.Error("paging command should complete on quiescence, not time out")
	}
	if !strings.Contains(c.Output, "Screen length set to 0") {
		t.Errorf("Output = %q", c.Output)
	}
}

func TestRunSequence_DelaysAndOrder(t *testing.T) {
	dev := fake.NewFakeDevice()
	rec := &sleepRecorder{}
	e, s := newExec(t, dev, executor.Options{
		SettleDelay: 500 * time.Millisecond,
		CommitDelay: time.Second,
		Sleep:       rec.sleep,
	})

	cmds := []string{
		"configure exclusive",
		"set policy-options prefix-list ISP-A 10.0.0.0/8",
		"commit",
		"exit",
	}
	outs, err := e.RunSequence(context.Background(), s, cmds)
	if err != nil {
		t.Fatalf("RunSequence() error = %v", err)
	}
	if len(outs) != len(cmds) {
		t.Fatalf("len(outs) = %d, want %d", len(outs), len(cmds))
	}
	for i, o := range outs {
		if o.Command != cmds[i] {
			t.Errorf("outs[%d].Command = %q, want %q", i, o.Command, cmds[i])
		}
	}
	want := []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, time.Second, 500 * time.Millisecond}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, rec.delays[i], want[i])
		}
	}

	got := dev.Received()
	if strings.Join(got, "|") != strings.Join(cmds, "|") {
		t.Errorf("device received %q, want %q", got, cmds)
	}
}

func TestRunSequence_StopsAtDeviceError(t *testing.T) {
	dev := fake.NewFakeDevice()
	e, s := newExec(t, dev, executor.Options{})

	cmds := []string{"show version", "show bogus thing", "show version"}
	outs, err := e.RunSequence(context.Background(), s, cmds)

	var seqErr *util.SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("error = %v, want SequenceError", err)
	}
	if seqErr.Index != 1 || seqErr.Command != "show bogus thing" {
		t.Errorf("SequenceError = index %d command %q", seqErr.Index, seqErr.Command)
	}
	if !errors.Is(err, executor.ErrDeviceRejected) {
		t.Errorf("cause should be ErrDeviceRejected: %v", err)
	}
	if len(outs) != 2 {
		t.Errorf("partial outputs = %d, want 2", len(outs))
	}
	if len(dev.Received()) != 2 {
		t.Errorf("device received %d commands after failure, want 2", len(dev.Received()))
	}
}

func TestRunSequence_TimeoutStops(t *testing.T) {
	dev := fake.NewFakeDevice()
	dev.NoPrompt = true
	e, s := newExec(t, dev, executor.Options{IdleTimeout: 200 * time.Millisecond})

	outs, err := e.RunSequence(context.Background(), s, []string{"show version", "show version"})
	if !errors.Is(err, executor.ErrCommandTimeout) || !errors.Is(err, util.ErrSequence) {
		t.Fatalf("error = %v, want timeout SequenceError", err)
	}
	if len(outs) != 1 || !strings.Contains(outs[0].Output, "Hostname: fake") {
		t.Errorf("partial output not preserved: %+v", outs)
	}
}

func TestRunSequence_IOError(t *testing.T) {
	dev := fake.NewFakeDevice()
	e, s := newExec(t, dev, executor.Options{})
	dev.DropConnections()

	_, err := e.RunSequence(context.Background(), s, []string{"show version"})
	if !errors.Is(err, util.ErrIO) || !errors.Is(err, util.ErrSequence) {
		t.Fatalf("error = %v, want IOError inside SequenceError", err)
	}
	if s.IsLive() {
		t.Error("session must be invalidated")
	}
}

func TestRunTransaction(t *testing.T) {
	dev := fake.NewFakeDevice("set policy-options prefix-list ISP-A 1.1.1.1/32")
	e, s := newExec(t, dev, executor.Options{})

	var verified bool
	ok, outs, err := e.RunTransaction(context.Background(), s,
		[]string{"set policy-options prefix-list ISP-A 10.0.0.0/8"},
		func(ctx context.Context) (bool, error) {
			c, err := e.RunOne(ctx, s, "show configuration policy-options | display set | no-more")
			verified = true
			return strings.Contains(c.Output, "ISP-A 10.0.0.0/8"), err
		})
	if err != nil || !ok {
		t.Fatalf("RunTransaction() = %v, %v", ok, err)
	}
	if !verified {
		t.Error("verifier not called")
	}
	if len(outs) != 4 || outs[0].Command != "configure exclusive" || outs[3].Command != "exit" {
		t.Errorf("outputs = %+v", outs)
	}

	cfg := dev.Config()
	if len(cfg) != 2 {
		t.Errorf("committed config = %q", cfg)
	}
}

func TestRunTransaction_UnverifiedIsSoft(t *testing.T) {
	dev := fake.NewFakeDevice()
	dev.DropCommits = true
	e, s := newExec(t, dev, executor.Options{})

	ok, _, err := e.RunTransaction(context.Background(), s,
		[]string{"set policy-options prefix-list ISP-A 10.0.0.0/8"},
		func(ctx context.Context) (bool, error) {
			c, err := e.RunOne(ctx, s, "show configuration policy-options | display set | no-more")
			return strings.Contains(c.Output, "10.0.0.0/8"), err
		})
	if err != nil {
		t.Fatalf("unverified transaction should not be an error: %v", err)
	}
	if ok {
		t.Error("RunTransaction() = true, want false when verification fails")
	}
}

func TestRunTransaction_FailureDiscardsCandidate(t *testing.T) {
	dev := fake.NewFakeDevice("set policy-options prefix-list ISP-A 1.1.1.1/32")
	dev.Reject["bogus"] = "error: syntax error: bogus"
	e, s := newExec(t, dev, executor.Options{})

	ok, outs, err := e.RunTransaction(context.Background(), s, []string{
		"set policy-options prefix-list ISP-A 10.0.0.0/8",
		"set policy-options prefix-list ISP-A bogus",
	}, nil)
	if ok || err == nil {
		t.Fatalf("RunTransaction() = %v, %v; want failure", ok, err)
	}
	var seqErr *util.SequenceError
	if !errors.As(err, &seqErr) || seqErr.Index != 2 {
		t.Errorf("error = %v, want SequenceError at index 2", err)
	}
	if len(outs) != 3 {
		t.Errorf("partial outputs = %d, want 3", len(outs))
	}
	if s.IsLive() {
		t.Error("session should be closed after a failed edit inside configure exclusive")
	}
	if dev.Commits() != 0 {
		t.Error("nothing should have been committed")
	}
	if cfg := dev.Config(); len(cfg) != 1 {
		t.Errorf("config changed: %q", cfg)
	}
}

func TestRunTransaction_CommitFails(t *testing.T) {
	dev := fake.NewFakeDevice()
	dev.CommitFails = true
	e, s := newExec(t, dev, executor.Options{})

	ok, _, err := e.RunTransaction(context.Background(), s, []string{"set routing-options static route 192.0.2.0/24 discard"}, nil)
	if ok || !errors.Is(err, executor.ErrDeviceRejected) {
		t.Fatalf("RunTransaction() = %v, %v", ok, err)
	}
}

func TestRunTransaction_Metrics(t *testing.T) {
	dev := fake.NewFakeDevice()
	m := metrics.New()
	e, s := newExec(t, dev, executor.Options{Metrics: m})

	if _, _, err := e.RunTransaction(context.Background(), s, []string{"set routing-options static route 192.0.2.1/32 discard"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.Commands.WithLabelValues("ok")); got != 4 {
		t.Errorf("ok commands = %v, want 4", got)
	}
}

func TestWrap(t *testing.T) {
	got := executor.Wrap([]string{"a", "b"})
	want := "configure exclusive|a|b|commit|exit"
	if strings.Join(got, "|") != want {
		t.Errorf("Wrap() = %q", got)
	}
}

func TestCapturedDeviceError(t *testing.T) {
	tests := []struct {
		cmd, out, want string
	}{
		{"show version", "show version\nHostname: r1\nr1> ", ""},
		{"show foo", "show foo\n         ^\nunknown command.\nr1> ", "unknown command."},
		{"commit", "commit\nerror: configuration check-out failed\n", "error: configuration check-out failed"},
		{"show log | match error:", "show log | match error:\nr1> ", ""},
		{"set x", "set x\n      ^\nmissing argument.\n", "missing argument."},
		{"show configuration interfaces | display set",
			"show configuration interfaces | display set\nset interfaces ge-0/0/0 description \"syntax error: tagged by noc\"\nset interfaces ge-0/0/1 description \"error: legacy\"\nr1> ", ""},
		{"set x", "set x\n      ^\nsyntax error, expecting <command>.\n", "syntax error, expecting <command>."},
	}
	for _, tt := range tests {
		c := executor.Captured{Command: tt.cmd, Output: tt.out}
		if got := c.DeviceError(); got != tt.want {
			t.Errorf("DeviceError(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestIsPagingCommand(t *testing.T) {
	if !executor.IsPagingCommand("set cli screen-length 0") {
		t.Error("screen-length should be a paging command")
	}
	if executor.IsPagingCommand("show cli") {
		t.Error("show cli is not a paging command")
	}
}
