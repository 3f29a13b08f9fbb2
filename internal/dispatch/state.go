// internal/dispatch/state.go
package dispatch

import (
	"log/slog"
	"time"

	"github.com/tendant/odm-dispatcher/internal/process"
	"github.com/tendant/odm-dispatcher/pkg/schema"
)

// EventPublisher sends JSON events to a subject.
type EventPublisher interface {
	PublishJSON(subject string, v any) error
}

type dispatchState struct {
	req       *process.Request
	start     time.Time
	lifecycle []schema.DispatchLifecycleEvent
}

func (s *dispatchState) addLifecycleEvent(stage schema.DispatchStage, err error, failureType schema.FailureType) schema.DispatchLifecycleEvent {
	event := schema.DispatchLifecycleEvent{
		DispatchID: s.req.DispatchID,
		JobName:    s.req.JobName,
		SourceName: s.req.SourceName,
		Stage:      stage,
		JobStatus:  string(s.req.Status),
		HappenedAt: time.Now().Unix(),
	}
	if err != nil {
		event.Error = err.Error()
		event.FailureType = failureType
	}
	s.lifecycle = append(s.lifecycle, event)
	return event
}

func (s *dispatchState) durationMs() int64 {
	if s.start.IsZero() {
		return 0
	}
	return time.Since(s.start).Milliseconds()
}

func (d *Dispatcher) publishLifecycle(event schema.DispatchLifecycleEvent) {
	if d.events == nil || d.opts.ResultSubject == "" {
		return
	}
	subject := d.opts.ResultSubject + ".lifecycle"
	if err := d.events.PublishJSON(subject, event); err != nil {
		d.logger.Error("publish lifecycle event failed", "subject", subject, "stage", event.Stage, "err", err)
	}
}

func (d *Dispatcher) publishDone(state *dispatchState, res Result, logger *slog.Logger) {
	if d.events == nil || d.opts.ResultSubject == "" {
		return
	}

	done := schema.DispatchDone{
		DispatchID: state.req.DispatchID,
		JobName:    state.req.JobName,
		SourceName: state.req.SourceName,
		InputPath:  state.req.InputPath,
		FinalStage: res.Stage,
		JobStatus:  string(state.req.Status),
		DurationMs: state.durationMs(),
		Artifacts:  res.Artifacts,
		Lifecycle:  state.lifecycle,
		HappenedAt: time.Now().Unix(),
	}
	done.TotalUploaded, done.TotalFailed = res.Counts()
	if res.Err != nil {
		done.Error = res.Err.Error()
		done.FailureType = res.FailureType
	}

	if err := d.events.PublishJSON(d.opts.ResultSubject, done); err != nil {
		logger.Error("publish result failed", "subject", d.opts.ResultSubject, "err", err)
	}
}
