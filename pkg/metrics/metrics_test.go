package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionLifecycle(t *testing.T) {
	m := New()

	m.SessionOpened("ssh", "auth_error")
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("ActiveSessions after failed open = %v, want 0", got)
	}

	m.SessionOpened("ssh", "ok")
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("ActiveSessions after open = %v, want 1", got)
	}

	m.SessionClosed()
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("ActiveSessions after close = %v, want 0", got)
	}

	expected := `
		# HELP junotron_sessions_opened_total Session open attempts by transport and result
		# TYPE junotron_sessions_opened_total counter
		junotron_sessions_opened_total{result="auth_error",transport="ssh"} 1
		junotron_sessions_opened_total{result="ok",transport="ssh"} 1
	`
	if err := testutil.CollectAndCompare(m.SessionsOpened, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestCommandAndApplyCounters(t *testing.T) {
	m := New()

	m.CommandDone("ok", 200*time.Millisecond)
	m.CommandDone("ok", 300*time.Millisecond)
	m.CommandDone("timeout", 10*time.Second)
	m.Read(512)
	m.Read(0)
	m.ApplyDone("prefix-list", "verified")
	m.RefreshDone(false)

	if got := testutil.ToFloat64(m.Commands.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok commands = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.CommandDuration); got != 1 {
		t.Errorf("CommandDuration series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.BytesRead); got != 512 {
		t.Errorf("BytesRead = %v, want 512", got)
	}
	if got := testutil.ToFloat64(m.Applies.WithLabelValues("prefix-list", "verified")); got != 1 {
		t.Errorf("verified applies = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Refreshes.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed refreshes = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	// None of these may panic.
	m.SessionOpened("ssh", "ok")
	m.SessionClosed()
	m.CommandDone("ok", time.Second)
	m.Read(10)
	m.ApplyDone("static", "failed")
	m.RefreshDone(true)
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ApplyDone("blackhole", "verified")

	path := filepath.Join(t.TempDir(), "junotron.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `junotron_applies_total{domain="blackhole",result="verified"} 1`) {
		t.Errorf("textfile missing apply counter:\n%s", data)
	}
}
