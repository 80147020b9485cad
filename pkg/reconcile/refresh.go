package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/newtron-network/junotron/pkg/extract"
	"github.com/newtron-network/junotron/pkg/util"
)

// RefreshResult is delivered once per scheduled refresh.
type RefreshResult struct {
	Groups    extract.Groups
	Selection Selection
	Err       error
}

// ScheduleRefresh re-reads the domain after delay and restores the pending
// selection. The workflow is marked fetching until the result is delivered.
// The returned channel receives exactly one result and is then closed.
func (w *Workflow) ScheduleRefresh(ctx context.Context, delay time.Duration) <-chan RefreshResult {
	ch := make(chan RefreshResult, 1)
	w.mu.Lock()
	w.state = StateFetching
	w.mu.Unlock()

	go func() {
		defer close(ch)
		if err := sleepContext(ctx, delay); err != nil {
			w.settle()
			w.cfg.Metrics.RefreshDone(false)
			ch <- RefreshResult{Selection: w.Selection(), Err: &util.RefreshError{Attempts: 0, Err: err}}
			return
		}
		g, err := w.Fetch(ctx)
		if err != nil {
			w.cfg.Metrics.RefreshDone(false)
			ch <- RefreshResult{Selection: w.Selection(), Err: &util.RefreshError{Attempts: 1, Err: err}}
			return
		}
		w.cfg.Metrics.RefreshDone(true)
		ch <- RefreshResult{Groups: g, Selection: w.restoreSelection(g)}
	}()
	return ch
}

// RetryFetch fetches up to maxAttempts times, interval apart, and restores
// the selection. Rejected credentials end the retry at once. Zero arguments
// take the configured defaults.
func (w *Workflow) RetryFetch(ctx context.Context, maxAttempts int, interval time.Duration) (extract.Groups, error) {
	if maxAttempts <= 0 {
		maxAttempts = w.cfg.RetryAttempts
	}
	if interval <= 0 {
		interval = w.cfg.RetryInterval
	}
	log := util.WithDevice(w.cfg.Device.Name).WithField("domain", w.cfg.Domain.Kind)

	attempts := 0
	g, err := backoff.Retry(ctx, func() (extract.Groups, error) {
		attempts++
		g, err := w.Fetch(ctx)
		if err != nil && (errors.Is(err, util.ErrAuth) || errors.Is(err, ErrBusy)) {
			return nil, backoff.Permanent(err)
		}
		return g, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnf("fetch attempt %d/%d failed, retrying in %s: %v", attempts, maxAttempts, next, err)
		}),
	)
	if err != nil {
		w.cfg.Metrics.RefreshDone(false)
		return nil, &util.RefreshError{Attempts: attempts, Err: err}
	}
	w.cfg.Metrics.RefreshDone(true)
	w.restoreSelection(g)
	return g, nil
}

// restoreSelection keeps the pending selection when its group survived,
// narrowed to members still present, and clears it otherwise.
func (w *Workflow) restoreSelection(g extract.Groups) Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	sel := w.selection
	if sel.Group == "" || !g.Has(sel.Group) {
		w.selection = Selection{}
		return Selection{}
	}
	kept := make([]string, 0, len(sel.Members))
	for _, m := range sel.Members {
		if g.Contains(sel.Group, m) {
			kept = append(kept, m)
		}
	}
	w.selection = Selection{Group: sel.Group, Members: kept}
	return Selection{Group: sel.Group, Members: append([]string(nil), kept...)}
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
