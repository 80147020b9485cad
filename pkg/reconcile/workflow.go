package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/junotron/pkg/audit"
	"github.com/newtron-network/junotron/pkg/auth"
	"github.com/newtron-network/junotron/pkg/executor"
	"github.com/newtron-network/junotron/pkg/extract"
	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/metrics"
	"github.com/newtron-network/junotron/pkg/session"
	"github.com/newtron-network/junotron/pkg/util"
)

// Defaults for Config.
const (
	DefaultRefreshDelay  = 3 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryInterval = 1 * time.Second
)

// ErrBusy is returned when an operation is attempted while another one owns
// the workflow.
var ErrBusy = errors.New("workflow busy")

// State is the workflow lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateReady
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateApplying:
		return "applying"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Selection is the group and members the user last selected. It survives a
// refresh when the group still exists.
type Selection struct {
	Group   string
	Members []string
}

// Config wires a Workflow to its device and collaborators.
type Config struct {
	Domain   *Domain
	Device   *inventory.Device
	Sessions *session.Manager
	Executor *executor.Executor
	Audit    audit.Logger
	Metrics  *metrics.Metrics
	User     string
	// Checker gates Apply and Commit; nil allows everything.
	Checker *auth.Checker

	// RefreshDelay is how long to wait after a commit before re-reading.
	// Negative means no wait.
	RefreshDelay  time.Duration
	RetryAttempts int
	RetryInterval time.Duration
}

// Workflow reconciles one domain on one device. All of its state lives here;
// callers hold one Workflow per domain they work with.
type Workflow struct {
	cfg Config

	groups atomic.Pointer[extract.Groups]

	mu        sync.Mutex
	state     State
	selection Selection
}

// ApplyResult reports a committed batch. Refresh delivers the re-read state
// once the scheduled refresh completes.
type ApplyResult struct {
	Verified bool
	Outputs  []executor.Captured
	Refresh  <-chan RefreshResult
}

// New returns an idle Workflow.
func New(cfg Config) (*Workflow, error) {
	if cfg.Domain == nil || cfg.Device == nil || cfg.Sessions == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("%w: workflow needs domain, device, session manager and executor", util.ErrInvalidConfig)
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopLogger{}
	}
	if cfg.RefreshDelay < 0 {
		cfg.RefreshDelay = 0
	} else if cfg.RefreshDelay == 0 {
		cfg.RefreshDelay = DefaultRefreshDelay
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Workflow{cfg: cfg}, nil
}

// Domain returns the workflow's domain.
func (w *Workflow) Domain() *Domain { return w.cfg.Domain }

// Device returns the workflow's device.
func (w *Workflow) Device() *inventory.Device { return w.cfg.Device }

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Groups returns the last fetched mapping, or nil before the first fetch.
// The mapping is replaced on every fetch and must not be modified.
func (w *Workflow) Groups() extract.Groups {
	if g := w.groups.Load(); g != nil {
		return *g
	}
	return nil
}

// Select records the pending selection.
func (w *Workflow) Select(group string, members []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selection = Selection{Group: group, Members: append([]string(nil), members...)}
}

// Selection returns the pending selection.
func (w *Workflow) Selection() Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Selection{Group: w.selection.Group, Members: append([]string(nil), w.selection.Members...)}
}

// Reset drops the mapping and selection and returns to idle. The session is
// left to the session manager.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.groups.Store(nil)
	w.selection = Selection{}
	w.state = StateIdle
}

func (w *Workflow) enter(next State, allowed ...State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range allowed {
		if w.state == s {
			w.state = next
			return nil
		}
	}
	if w.state == StateApplying || w.state == StateFetching {
		return fmt.Errorf("%w: %s in progress", ErrBusy, w.state)
	}
	return util.NewPreconditionError(string(next), w.label(), "state is "+w.state.String(), "fetch first")
}

// settle leaves a transient state: ready when a mapping is loaded, idle
// otherwise.
func (w *Workflow) settle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.groups.Load() != nil {
		w.state = StateReady
	} else {
		w.state = StateIdle
	}
}

func (w *Workflow) label() string {
	return fmt.Sprintf("%s on %s", w.cfg.Domain.Kind, w.cfg.Device.Name)
}

// Fetch reads the domain from the device and replaces the mapping.
func (w *Workflow) Fetch(ctx context.Context) (extract.Groups, error) {
	if err := w.enter(StateFetching, StateIdle, StateReady, StateFetching); err != nil {
		return nil, err
	}
	g, err := w.fetch(ctx)
	if err != nil {
		w.settle()
		return nil, err
	}
	w.groups.Store(&g)
	w.settle()
	util.WithDevice(w.cfg.Device.Name).WithField("domain", w.cfg.Domain.Kind).
		Debugf("fetched %d group(s)", g.Len())
	return g, nil
}

// fetch runs the show command and extracts it without touching state.
func (w *Workflow) fetch(ctx context.Context) (extract.Groups, error) {
	s, err := w.cfg.Sessions.Open(ctx, w.cfg.Device)
	if err != nil {
		return nil, err
	}
	outs, err := w.cfg.Executor.RunSequence(ctx, s, []string{w.cfg.Domain.Show})
	if err != nil {
		return nil, err
	}
	return extract.Extract(outs[0].Output, w.cfg.Domain.Pattern), nil
}

func (w *Workflow) ready() (extract.Groups, error) {
	w.mu.Lock()
	st := w.state
	w.mu.Unlock()
	if st != StateReady {
		if st == StateApplying || st == StateFetching {
			return nil, fmt.Errorf("%w: %s in progress", ErrBusy, st)
		}
		return nil, util.NewPreconditionError("plan", w.label(), "configuration not fetched", "fetch first")
	}
	return w.Groups(), nil
}

// PlanAdd validates candidates and builds the add batch for group. Nothing
// is sent to the device.
func (w *Workflow) PlanAdd(group string, candidates []string) (*CommandBatch, error) {
	g, err := w.ready()
	if err != nil {
		return nil, err
	}
	return planAdd(w.cfg.Domain, w.cfg.Device.Name, g, group, candidates)
}

// PlanDelete builds the delete batch for the selected members of group.
// Nothing is sent to the device.
func (w *Workflow) PlanDelete(group string, selected []string) (*CommandBatch, error) {
	g, err := w.ready()
	if err != nil {
		return nil, err
	}
	return planDelete(w.cfg.Domain, w.cfg.Device.Name, g, group, selected)
}

// Apply commits b inside an exclusive configuration transaction, verifies it
// against a fresh read and schedules a refresh. A false Verified with a nil
// error means the commit was accepted but the change could not be confirmed.
func (w *Workflow) Apply(ctx context.Context, b *CommandBatch) (*ApplyResult, error) {
	if b == nil || b.IsEmpty() {
		return nil, util.NewValidationError("empty batch")
	}
	if b.Domain != w.cfg.Domain.Kind || b.Device != w.cfg.Device.Name {
		return nil, util.NewPreconditionError("apply", w.label(), "batch planned for "+string(b.Domain)+" on "+b.Device, "")
	}
	perm := auth.ModifyPermission(string(b.Domain))
	if err := w.cfg.Checker.Check(perm, auth.NewContext().WithDevice(b.Device).WithGroup(b.Group)); err != nil {
		return nil, err
	}
	if err := w.enter(StateApplying, StateReady); err != nil {
		return nil, err
	}

	log := util.WithDevice(w.cfg.Device.Name).WithFields(map[string]interface{}{
		"domain":    w.cfg.Domain.Kind,
		"operation": b.Operation,
	})
	start := time.Now()
	event := audit.NewEvent(w.cfg.User, w.cfg.Device.Name, string(b.Operation)).
		WithDomain(string(b.Domain)).
		WithGroup(b.Group).
		WithCommands(b.Commands).
		WithRejected(b.Rejected).
		WithExecuteMode(true)

	s, err := w.cfg.Sessions.Open(ctx, w.cfg.Device)
	if err != nil {
		w.settle()
		w.record(log, event.WithError(err).WithDuration(time.Since(start)), "error")
		return nil, err
	}
	event.WithSession(s.ID)

	verify := func(ctx context.Context) (bool, error) {
		outs, err := w.cfg.Executor.RunSequence(ctx, s, []string{w.cfg.Domain.Show})
		if err != nil {
			return false, err
		}
		return b.Verify(extract.Extract(outs[0].Output, w.cfg.Domain.Pattern)), nil
	}

	ok, outs, err := w.cfg.Executor.RunTransaction(ctx, s, b.Commands, verify)
	res := &ApplyResult{Verified: ok, Outputs: outs}
	event.WithDuration(time.Since(start))
	if err != nil {
		w.settle()
		w.record(log, event.WithError(err), "error")
		return res, err
	}

	result := "ok"
	if !ok {
		result = "unverified"
	}
	w.record(log, event.WithSuccess(ok), result)
	log.Infof("applied %d command(s) (%s)", len(b.Commands), result)

	res.Refresh = w.ScheduleRefresh(ctx, w.cfg.RefreshDelay)
	return res, nil
}

func (w *Workflow) record(log *logrus.Entry, e *audit.Event, result string) {
	w.cfg.Metrics.ApplyDone(string(w.cfg.Domain.Kind), result)
	if err := w.cfg.Audit.Log(e); err != nil {
		log.Warnf("audit log: %v", err)
	}
}

// Commit issues a bare commit inside configure exclusive, for changes made
// outside the workflow. It requires no fetched state.
func (w *Workflow) Commit(ctx context.Context) ([]executor.Captured, error) {
	if err := w.cfg.Checker.Check(auth.PermConfigCommit, auth.NewContext().WithDevice(w.cfg.Device.Name)); err != nil {
		return nil, err
	}
	s, err := w.cfg.Sessions.Open(ctx, w.cfg.Device)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	_, outs, err := w.cfg.Executor.RunTransaction(ctx, s, nil, nil)
	event := audit.NewEvent(w.cfg.User, w.cfg.Device.Name, executor.CmdCommit).
		WithSession(s.ID).
		WithExecuteMode(true).
		WithDuration(time.Since(start))
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess(true)
	}
	if aerr := w.cfg.Audit.Log(event); aerr != nil {
		util.WithDevice(w.cfg.Device.Name).Warnf("audit log: %v", aerr)
	}
	return outs, err
}
