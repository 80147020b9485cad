package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWorker_StreamsAndReturns(t *testing.T) {
	w := New(4)
	defer w.Stop()

	j, err := w.Submit(context.Background(), "show", func(ctx context.Context, emit Emit) (any, error) {
		emit("show version", []byte("Hostname: r1\n"))
		emit("show version", []byte("admin@r1> "))
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var sb strings.Builder
	for c := range j.Chunks() {
		if c.Command != "show version" {
			t.Errorf("chunk command = %q", c.Command)
		}
		sb.Write(c.Data)
	}
	if sb.String() != "Hostname: r1\nadmin@r1> " {
		t.Errorf("streamed %q", sb.String())
	}
	res := <-j.Done()
	if res.Err != nil || res.Value != 42 || res.Name != "show" {
		t.Errorf("result = %+v", res)
	}
}

func TestWorker_RunsJobsInOrderOneAtATime(t *testing.T) {
	w := New(8)
	defer w.Stop()

	var mu sync.Mutex
	var order []int
	running := 0
	var jobs []*Job
	for i := 0; i < 5; i++ {
		i := i
		j, err := w.Submit(context.Background(), "job", func(ctx context.Context, emit Emit) (any, error) {
			mu.Lock()
			running++
			if running > 1 {
				t.Error("two jobs running at once")
			}
			order = append(order, i)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return nil, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, j)
	}
	for _, j := range jobs {
		j.Wait()
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestWorker_Errors(t *testing.T) {
	w := New(2)
	defer w.Stop()

	boom := errors.New("boom")
	j, _ := w.Submit(context.Background(), "fail", func(ctx context.Context, emit Emit) (any, error) {
		return nil, boom
	})
	if res := j.Wait(); !errors.Is(res.Err, boom) {
		t.Errorf("Err = %v, want boom", res.Err)
	}

	j, _ = w.Submit(context.Background(), "panic", func(ctx context.Context, emit Emit) (any, error) {
		panic("bad job")
	})
	if res := j.Wait(); res.Err == nil {
		t.Error("panic was not reported")
	}
}

func TestWorker_CancelledBeforeStart(t *testing.T) {
	w := New(2)
	defer w.Stop()

	release := make(chan struct{})
	blocker, _ := w.Submit(context.Background(), "blocker", func(context.Context, Emit) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	j, err := w.Submit(ctx, "queued", func(context.Context, Emit) (any, error) {
		ran = true
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	close(release)
	blocker.Wait()

	if res := j.Wait(); !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want canceled", res.Err)
	}
	if ran {
		t.Error("cancelled job ran")
	}
}

func TestWorker_Stop(t *testing.T) {
	w := New(1)
	j, _ := w.Submit(context.Background(), "last", func(context.Context, Emit) (any, error) { return "ok", nil })
	w.Stop()
	if res := <-j.Done(); res.Value != "ok" {
		t.Errorf("queued job did not finish: %+v", res)
	}
	if _, err := w.Submit(context.Background(), "late", nil); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after Stop error = %v", err)
	}
	w.Stop()
}
