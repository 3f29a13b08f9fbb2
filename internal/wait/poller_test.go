package wait

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tendant/odm-dispatcher/internal/process"
)

// fakeClock advances instantly whenever After is called.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type step struct {
	status process.Status
	err    error
}

type scriptedQuerier struct {
	steps []step
	calls int
}

func (q *scriptedQuerier) Status(context.Context, string) (process.Status, error) {
	i := q.calls
	q.calls++
	if i >= len(q.steps) {
		last := q.steps[len(q.steps)-1]
		return last.status, last.err
	}
	return q.steps[i].status, q.steps[i].err
}

func newPoller(q StatusQuerier, clock Clock) *Poller {
	return &Poller{
		Querier:  q,
		Interval: 10 * time.Second,
		Timeout:  30 * time.Minute,
		Clock:    clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestUntilReachesTerminated(t *testing.T) {
	q := &scriptedQuerier{steps: []step{
		{status: process.StatusPending},
		{status: process.StatusRunning},
		{status: process.StatusRunning},
		{status: process.StatusTerminated},
	}}
	clock := &fakeClock{now: time.Unix(0, 0)}

	res := newPoller(q, clock).Until(context.Background(), "job")
	if res.Outcome != OutcomeDone {
		t.Fatalf("expected done, got %s", res.Outcome)
	}
	if res.Polls != 4 {
		t.Fatalf("expected 4 polls, got %d", res.Polls)
	}
	if res.Elapsed != 30*time.Second {
		t.Fatalf("expected 30s elapsed, got %s", res.Elapsed)
	}
}

func TestUntilTimesOut(t *testing.T) {
	q := &scriptedQuerier{steps: []step{{status: process.StatusRunning}}}
	clock := &fakeClock{now: time.Unix(0, 0)}

	res := newPoller(q, clock).Until(context.Background(), "job")
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("expected timeout, got %s", res.Outcome)
	}
	if res.Polls != 180 {
		t.Fatalf("expected 180 polls over 30 minutes, got %d", res.Polls)
	}
	if res.Elapsed != 30*time.Minute {
		t.Fatalf("unexpected elapsed %s", res.Elapsed)
	}
}

func TestUntilFailedStatusStopsEarly(t *testing.T) {
	q := &scriptedQuerier{steps: []step{
		{status: process.StatusRunning},
		{status: process.StatusFailed},
	}}
	res := newPoller(q, &fakeClock{}).Until(context.Background(), "job")
	if res.Outcome != OutcomeFailed || res.Status != process.StatusFailed {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUntilToleratesTransientErrors(t *testing.T) {
	boom := errors.New("throttled")
	q := &scriptedQuerier{steps: []step{
		{err: boom},
		{err: boom},
		{status: process.StatusRunning},
		{err: boom},
		{status: process.StatusTerminated},
	}}
	p := newPoller(q, &fakeClock{})
	p.MaxQueryErrors = 3

	res := p.Until(context.Background(), "job")
	if res.Outcome != OutcomeDone {
		t.Fatalf("expected done, got %s", res.Outcome)
	}
	if res.Errors != 3 {
		t.Fatalf("expected 3 query errors, got %d", res.Errors)
	}
}

func TestUntilAbortsAfterConsecutiveErrors(t *testing.T) {
	boom := errors.New("not found")
	q := &scriptedQuerier{steps: []step{{err: boom}}}
	p := newPoller(q, &fakeClock{})
	p.MaxQueryErrors = 4

	res := p.Until(context.Background(), "job")
	if res.Outcome != OutcomeQueryFailed {
		t.Fatalf("expected query_failed, got %s", res.Outcome)
	}
	if res.Polls != 4 || !errors.Is(res.LastErr, boom) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUntilCanceled(t *testing.T) {
	q := &scriptedQuerier{steps: []step{{status: process.StatusRunning}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPoller(q, &blockingClock{})
	res := p.Until(ctx, "job")
	if res.Outcome != OutcomeCanceled {
		t.Fatalf("expected canceled, got %s", res.Outcome)
	}
	if !errors.Is(res.LastErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.LastErr)
	}
}

// blockingClock never fires, so only cancellation can end a wait.
type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return time.Unix(0, 0) }
func (blockingClock) After(time.Duration) <-chan time.Time { return nil }
