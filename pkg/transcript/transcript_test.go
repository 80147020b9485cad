package transcript

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/junotron/pkg/util"
)

func TestFileNames(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	if got := QueryResultName(ts); got != "junos_query_result_20240305_140709.txt" {
		t.Errorf("QueryResultName() = %q", got)
	}
	if got := InspectionResultName(ts); got != "junos_inspection_result_20240305_140709.txt" {
		t.Errorf("InspectionResultName() = %q", got)
	}
}

func TestWriter_AppendsRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "transcript.log")
	w, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	w.Chunk("show version", []byte("show version\r\n"))
	w.Chunk("show version", []byte("Hostname: r1\r\nadmin@r1> "))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	w, err = Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("again"))
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "show version\r\nHostname: r1\r\nadmin@r1> again"; string(data) != want {
		t.Errorf("transcript = %q, want %q", data, want)
	}
}

func TestSaveBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", QueryResultName(time.Now()))
	if err := SaveBuffer(path, "inet.0: 3 destinations\n"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "inet.0: 3 destinations\n" {
		t.Errorf("saved %q", data)
	}
	if err := SaveBuffer(path, ""); err == nil {
		t.Error("saving an empty buffer should fail")
	}
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweeps", "run.txt")
	f, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("===== show version =====\n")
	f.Close()
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "=====") {
		t.Errorf("file = %q", data)
	}
}

func TestTee(t *testing.T) {
	var a, b strings.Builder
	fn := Tee(
		func(_ string, d []byte) { a.Write(d) },
		nil,
		func(c string, d []byte) { b.WriteString(c + ":" + string(d)) },
	)
	fn("cmd", []byte("x"))
	if a.String() != "x" || b.String() != "cmd:x" {
		t.Errorf("a=%q b=%q", a.String(), b.String())
	}
}

type flakyWriter struct {
	fail bool
	buf  bytes.Buffer
}

func (f *flakyWriter) Write(p []byte) (int, error) {
	if f.fail {
		return 0, errors.New("disk full")
	}
	return f.buf.Write(p)
}

func (f *flakyWriter) Close() error { return nil }

func TestWriter_ChunkReportsFailuresOnce(t *testing.T) {
	var logs bytes.Buffer
	prev := util.Logger.Out
	util.SetLogOutput(&logs)
	defer util.SetLogOutput(prev)

	out := &flakyWriter{fail: true}
	w := &Writer{out: out, path: "transcript.log"}

	w.Chunk("show version", []byte("a"))
	w.Chunk("show version", []byte("b"))
	if n := strings.Count(logs.String(), "write failed"); n != 1 {
		t.Errorf("logged %d write failures, want 1:\n%s", n, logs.String())
	}

	out.fail = false
	w.Chunk("show version", []byte("c"))
	if !strings.Contains(logs.String(), "recording resumed") {
		t.Errorf("recovery not logged:\n%s", logs.String())
	}

	out.fail = true
	w.Chunk("show version", []byte("d"))
	if n := strings.Count(logs.String(), "write failed"); n != 2 {
		t.Errorf("a new failure run should log again, got %d", n)
	}
	if out.buf.String() != "c" {
		t.Errorf("recorded %q, want %q", out.buf.String(), "c")
	}
}
