// Package worker runs device jobs one at a time off the caller's goroutine.
// Output chunks and the final result come back on channels, so the
// presentation layer never touches a session directly.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newtron-network/junotron/pkg/util"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker stopped")

// DefaultChunkBuffer is the per-job chunk channel capacity.
const DefaultChunkBuffer = 256

// Chunk is raw device output tagged with the command that produced it.
type Chunk struct {
	Command string
	Data    []byte
}

// Emit forwards a chunk to the job's consumer. It matches
// executor.ChunkFunc.
type Emit func(command string, data []byte)

// Task is the blocking work of a job.
type Task func(ctx context.Context, emit Emit) (any, error)

// Result is the outcome of a job.
type Result struct {
	Name     string
	Value    any
	Err      error
	Duration time.Duration
}

// Job is a submitted task. Consumers read Chunks until it is closed, then
// receive exactly one value from Done.
type Job struct {
	Name       string
	EnqueuedAt time.Time

	task   Task
	ctx    context.Context
	chunks chan Chunk
	done   chan Result
}

// Chunks streams output while the job runs. It is closed before Done fires.
func (j *Job) Chunks() <-chan Chunk { return j.chunks }

// Done delivers the result.
func (j *Job) Done() <-chan Result { return j.done }

// Wait discards remaining chunks and returns the result.
func (j *Job) Wait() Result {
	for range j.chunks {
	}
	return <-j.done
}

// Worker serializes jobs on a single goroutine.
type Worker struct {
	// WarnAfter logs jobs that waited longer than this in the queue.
	WarnAfter time.Duration

	queue chan *Job

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New starts a worker whose queue holds up to depth pending jobs.
func New(depth int) *Worker {
	if depth < 1 {
		depth = 1
	}
	w := &Worker{
		WarnAfter: 2 * time.Second,
		queue:     make(chan *Job, depth),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Submit queues task. ctx governs the task once it starts; a job whose ctx
// is done before it starts completes with ctx's error without running.
func (w *Worker) Submit(ctx context.Context, name string, task Task) (*Job, error) {
	j := &Job{
		Name:       name,
		EnqueuedAt: time.Now(),
		task:       task,
		ctx:        ctx,
		chunks:     make(chan Chunk, DefaultChunkBuffer),
		done:       make(chan Result, 1),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil, ErrStopped
	}
	select {
	case w.queue <- j:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for j := range w.queue {
		w.execute(j)
	}
}

func (w *Worker) execute(j *Job) {
	log := util.WithField("job", j.Name)
	if waited := time.Since(j.EnqueuedAt); w.WarnAfter > 0 && waited >= w.WarnAfter {
		log.Warnf("job waited %s in queue", waited.Round(time.Millisecond))
	}

	start := time.Now()
	if err := j.ctx.Err(); err != nil {
		close(j.chunks)
		j.done <- Result{Name: j.Name, Err: err}
		return
	}

	emit := func(command string, data []byte) {
		c := Chunk{Command: command, Data: append([]byte(nil), data...)}
		select {
		case j.chunks <- c:
		case <-j.ctx.Done():
		}
	}

	value, err := w.call(j, emit)
	close(j.chunks)
	res := Result{Name: j.Name, Value: value, Err: err, Duration: time.Since(start)}
	if err != nil {
		log.Debugf("job failed after %s: %v", res.Duration.Round(time.Millisecond), err)
	}
	j.done <- res
}

// call runs the task, turning a panic into an error so one bad job does not
// take the worker down.
func (w *Worker) call(j *Job, emit Emit) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			util.WithField("job", j.Name).Errorf("job panicked: %v", r)
			err = errors.New("job panicked")
		}
	}()
	return j.task(j.ctx, emit)
}

// Stop refuses new jobs, lets queued ones finish and waits for the worker
// to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
