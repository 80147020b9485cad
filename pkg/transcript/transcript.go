// Package transcript keeps the write-only records of device output: the
// append-only raw transcript, saved query buffers and inspection results.
package transcript

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/newtron-network/junotron/pkg/util"
)

// File name layout for saved buffers.
const (
	timestampLayout = "20060102_150405"
	queryPrefix     = "junos_query_result_"
	inspectPrefix   = "junos_inspection_result_"
)

// DefaultPath returns ~/.junotron/transcript.log.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "transcript.log"
	}
	return filepath.Join(home, ".junotron", "transcript.log")
}

// QueryResultName is the default file name for a saved output buffer.
func QueryResultName(t time.Time) string {
	return queryPrefix + t.Format(timestampLayout) + ".txt"
}

// InspectionResultName is the default file name for an inspection run.
func InspectionResultName(t time.Time) string {
	return inspectPrefix + t.Format(timestampLayout) + ".txt"
}

// Options controls rotation of the raw transcript. MaxBackups of zero
// keeps every rotated file.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Writer appends every chunk of device output, unmodified, to a rotated
// file. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	out     io.WriteCloser
	path    string
	failing bool
}

// Open prepares the transcript at path. The directory is created; the file
// is opened on first write.
func Open(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating transcript directory: %w", err)
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}
	return &Writer{path: path, out: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
	}}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

// Chunk records one chunk of command output. It matches executor.ChunkFunc.
// A write failure is logged once; the next success ends the failure run.
func (w *Writer) Chunk(_ string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(data); err != nil {
		if !w.failing {
			util.Warnf("Transcript %s: write failed, output is not being recorded: %v", w.path, err)
		}
		w.failing = true
		return
	}
	if w.failing {
		util.Infof("Transcript %s: recording resumed", w.path)
		w.failing = false
	}
}

// Close closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}

// SaveBuffer writes text to path, replacing any existing file.
func SaveBuffer(path, text string) error {
	if text == "" {
		return fmt.Errorf("nothing to save")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(text), 0644)
}

// Create opens path for an inspection run, truncating it.
func Create(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// Tee returns a chunk callback that forwards to every non-nil fn.
func Tee(fns ...func(command string, data []byte)) func(command string, data []byte) {
	return func(command string, data []byte) {
		for _, fn := range fns {
			if fn != nil {
				fn(command, data)
			}
		}
	}
}

var _ io.Writer = (*Writer)(nil)
