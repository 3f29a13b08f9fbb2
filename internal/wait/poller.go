// internal/wait/poller.go
package wait

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/odm-dispatcher/internal/process"
)

// Clock is the time source used by Poller.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// StatusQuerier reads the state of a named job.
type StatusQuerier interface {
	Status(ctx context.Context, name string) (process.Status, error)
}

type Outcome string

const (
	OutcomeDone        Outcome = "done"
	OutcomeFailed      Outcome = "failed"
	OutcomeTimedOut    Outcome = "timed_out"
	OutcomeQueryFailed Outcome = "query_failed"
	OutcomeCanceled    Outcome = "canceled"
)

type Result struct {
	Outcome Outcome
	Status  process.Status
	Polls   int
	Errors  int
	Elapsed time.Duration
	LastErr error
}

// Poller waits for a job to reach a terminal state.
type Poller struct {
	Querier  StatusQuerier
	Interval time.Duration
	Timeout  time.Duration
	// MaxQueryErrors aborts the wait after that many consecutive failed
	// queries. Zero keeps polling until the timeout.
	MaxQueryErrors int
	Clock          Clock
	Logger         *slog.Logger
	// OnPoll, if set, is called after every query.
	OnPoll func(status process.Status, err error)
}

// Until polls name immediately and then every Interval until the job is
// terminal, the timeout elapses or ctx is canceled. It never stops the job.
func (p *Poller) Until(ctx context.Context, name string) Result {
	clock := p.Clock
	if clock == nil {
		clock = RealClock
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := clock.Now()
	deadline := start.Add(p.Timeout)
	var res Result
	consecutive := 0

	for {
		now := clock.Now()
		res.Elapsed = now.Sub(start)
		if !now.Before(deadline) {
			res.Outcome = OutcomeTimedOut
			return res
		}

		status, err := p.Querier.Status(ctx, name)
		res.Polls++
		if p.OnPoll != nil {
			p.OnPoll(status, err)
		}

		if err != nil {
			res.Errors++
			res.LastErr = err
			consecutive++
			logger.Warn("status query failed", "job_name", name, "consecutive", consecutive, "err", err)
			if p.MaxQueryErrors > 0 && consecutive >= p.MaxQueryErrors {
				res.Outcome = OutcomeQueryFailed
				res.Elapsed = clock.Now().Sub(start)
				return res
			}
		} else {
			consecutive = 0
			res.Status = status
			logger.Info("job state", "job_name", name, "status", string(status))
			switch {
			case status.Done():
				res.Outcome = OutcomeDone
				res.Elapsed = clock.Now().Sub(start)
				return res
			case status.Failed():
				res.Outcome = OutcomeFailed
				res.Elapsed = clock.Now().Sub(start)
				return res
			}
		}

		delay := p.Interval
		if remaining := deadline.Sub(clock.Now()); remaining < delay {
			delay = remaining
		}
		select {
		case <-ctx.Done():
			res.Outcome = OutcomeCanceled
			res.LastErr = ctx.Err()
			res.Elapsed = clock.Now().Sub(start)
			return res
		case <-clock.After(delay):
		}
	}
}
