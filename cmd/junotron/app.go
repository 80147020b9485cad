package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/newtron-network/junotron/pkg/audit"
	"github.com/newtron-network/junotron/pkg/auth"
	"github.com/newtron-network/junotron/pkg/cli"
	"github.com/newtron-network/junotron/pkg/executor"
	"github.com/newtron-network/junotron/pkg/inventory"
	"github.com/newtron-network/junotron/pkg/metrics"
	"github.com/newtron-network/junotron/pkg/reconcile"
	"github.com/newtron-network/junotron/pkg/session"
	"github.com/newtron-network/junotron/pkg/settings"
	"github.com/newtron-network/junotron/pkg/transcript"
	"github.com/newtron-network/junotron/pkg/util"
	"github.com/newtron-network/junotron/pkg/worker"
)

func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
func dim(s string) string    { return cli.Dim(s) }

// App holds everything one junotron invocation shares: the inventory, the
// single device session, the executor and the background worker.
type App struct {
	Settings   *settings.Settings
	Inventory  *inventory.Inventory
	Checker    *auth.Checker
	Metrics    *metrics.Metrics
	Sessions   *session.Manager
	Exec       *executor.Executor
	Audit      audit.Logger
	Transcript *transcript.Writer
	Worker     *worker.Worker

	emitMu sync.Mutex
	emit   worker.Emit

	// buffer is the output most recently displayed, for save.
	bufMu  sync.Mutex
	buffer strings.Builder

	workflows map[reconcile.Kind]*reconcile.Workflow
}

// NewApp loads the inventory and wires the session stack.
func NewApp(s *settings.Settings, invPath string) (*App, error) {
	if invPath == "" {
		return nil, fmt.Errorf("inventory required: use -I <file> or 'junotron settings set inventory <file>'")
	}
	inv, err := inventory.Load(invPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		Settings:  s,
		Inventory: inv,
		Checker:   auth.NewChecker(inv.Access),
		Metrics:   metrics.New(),
		Audit:     audit.NopLogger{},
		Worker:    worker.New(8),
		workflows: make(map[reconcile.Kind]*reconcile.Workflow),
	}

	tpath := transcriptPath
	if tpath == "" {
		tpath = s.TranscriptPath()
	}
	if tw, err := transcript.Open(tpath, transcript.Options{}); err != nil {
		util.Warnf("Transcript disabled: %v", err)
	} else {
		a.Transcript = tw
	}

	if al, err := openAudit(s); err != nil {
		util.Warnf("Could not initialize audit logging: %v", err)
	} else {
		a.Audit = al
	}

	sinks := []func(string, []byte){a.forward}
	if a.Transcript != nil {
		sinks = append(sinks, a.Transcript.Chunk)
	}

	mopts := []session.ManagerOption{session.WithMetrics(a.Metrics)}
	if a.Transcript != nil {
		mopts = append(mopts, session.WithOnChunk(a.Transcript.Chunk))
	}
	a.Sessions = session.NewManager(session.NewNetDialer(s.KnownHostsPath()), mopts...)
	a.Exec = executor.New(executor.Options{
		IdleTimeout:    settings.Duration(s.IdleTimeout, executor.DefaultIdleTimeout),
		OverallTimeout: settings.Duration(s.OverallTimeout, executor.DefaultOverallTimeout),
		OnChunk:        transcript.Tee(sinks...),
		Metrics:        a.Metrics,
	})
	return a, nil
}

// openAudit opens the audit file, plus the shared Redis trail when one is
// configured. Queries go to Redis when it is available.
func openAudit(s *settings.Settings) (audit.Logger, error) {
	fl, err := audit.NewFileLogger(s.AuditLogPath(), audit.DefaultRotation)
	if err != nil {
		return nil, err
	}
	if s.AuditRedis == "" {
		return fl, nil
	}
	rl, err := audit.NewRedisLogger(s.AuditRedis, "")
	if err != nil {
		util.Warnf("Shared audit trail disabled: %v", err)
		return fl, nil
	}
	return audit.MultiLogger{rl, fl}, nil
}

// forward passes device output to the job currently streaming, if any.
func (a *App) forward(command string, data []byte) {
	a.emitMu.Lock()
	emit := a.emit
	a.emitMu.Unlock()
	if emit != nil {
		emit(command, data)
	}
}

func (a *App) setEmit(e worker.Emit) {
	a.emitMu.Lock()
	a.emit = e
	a.emitMu.Unlock()
}

// Device resolves the -d device and makes sure it has a password.
func (a *App) Device() (*inventory.Device, error) {
	if deviceName == "" {
		return nil, fmt.Errorf("device required: use -d <device> flag")
	}
	dev, err := a.Inventory.Device(deviceName)
	if err != nil {
		return nil, err
	}
	if err := promptPassword(dev); err != nil {
		return nil, err
	}
	return dev, nil
}

// promptPassword asks for the password of a device that has none in the
// inventory.
func promptPassword(dev *inventory.Device) error {
	if dev.Password != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("device %s: no password in inventory and stdin is not a terminal", dev.Name)
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", dev.Username, dev.Endpoint())
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	dev.Password = string(pw)
	return nil
}

// Authorize checks a read permission of the current user on the -d device.
func (a *App) Authorize(p auth.Permission) error {
	return a.Checker.Check(p, auth.NewContext().WithDevice(deviceName))
}

// Session opens or reuses the session to the -d device.
func (a *App) Session(ctx context.Context) (*session.Session, error) {
	dev, err := a.Device()
	if err != nil {
		return nil, err
	}
	return a.Sessions.Open(ctx, dev)
}

// Workflow returns the workflow for kind on the -d device, creating it on
// first use.
func (a *App) Workflow(kind reconcile.Kind) (*reconcile.Workflow, error) {
	if wf, ok := a.workflows[kind]; ok && wf.Device().Name == deviceName {
		return wf, nil
	}
	dev, err := a.Device()
	if err != nil {
		return nil, err
	}
	cfg := reconcile.DomainConfig{
		FirewallFilter: a.Settings.FirewallFilter,
		NextHop:        a.Settings.StaticNextHop,
	}
	switch kind {
	case reconcile.KindStatic:
		cfg.Attributes = a.Settings.StaticAttributes
	case reconcile.KindBlackhole:
		cfg.Attributes = a.Settings.BlackholeAttributes
	}
	domain, err := reconcile.NewDomain(kind, cfg)
	if err != nil {
		return nil, err
	}
	wf, err := reconcile.New(reconcile.Config{
		Domain:        domain,
		Device:        dev,
		Sessions:      a.Sessions,
		Executor:      a.Exec,
		Audit:         a.Audit,
		Metrics:       a.Metrics,
		User:          a.Checker.CurrentUser(),
		Checker:       a.Checker,
		RefreshDelay:  settings.Duration(a.Settings.RefreshDelay, reconcile.DefaultRefreshDelay),
		RetryAttempts: a.Settings.RetryAttempts,
	})
	if err != nil {
		return nil, err
	}
	a.workflows[kind] = wf
	return wf, nil
}

// Stream runs task on the background worker, copying its output to out as
// it arrives, and returns the task's result.
func (a *App) Stream(ctx context.Context, name string, out io.Writer, task func(ctx context.Context) (any, error)) (any, error) {
	job, err := a.Worker.Submit(ctx, name, func(ctx context.Context, emit worker.Emit) (any, error) {
		a.setEmit(emit)
		defer a.setEmit(nil)
		return task(ctx)
	})
	if err != nil {
		return nil, err
	}

	a.bufMu.Lock()
	a.buffer.Reset()
	a.bufMu.Unlock()
	for c := range job.Chunks() {
		text := util.StripCR(string(c.Data))
		io.WriteString(out, text)
		a.bufMu.Lock()
		a.buffer.WriteString(text)
		a.bufMu.Unlock()
	}
	res := <-job.Done()
	return res.Value, res.Err
}

// Buffer returns the output most recently streamed.
func (a *App) Buffer() string {
	a.bufMu.Lock()
	defer a.bufMu.Unlock()
	return a.buffer.String()
}

// Close tears down the session and flushes logs and metrics.
func (a *App) Close() {
	a.Worker.Stop()
	a.Sessions.Close()
	if a.Transcript != nil {
		a.Transcript.Close()
	}
	a.Audit.Close()
	if metricsTextfile != "" {
		if err := a.Metrics.WriteTextfile(metricsTextfile); err != nil {
			util.Warnf("writing metrics: %v", err)
		}
	}
}
