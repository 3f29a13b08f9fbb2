// Package dispatch turns one inbound file into one photogrammetry job and
// collects its outputs.
//
// The flow is linear: save the input to the shared mount, launch a single
// container job against it, wait for a terminal state, then upload the
// output directory. Every failure is logged where it happens and ends the
// invocation; nothing is retried and at most one job is launched.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/odm-dispatcher/internal/img"
	"github.com/tendant/odm-dispatcher/internal/lock"
	"github.com/tendant/odm-dispatcher/internal/metrics"
	"github.com/tendant/odm-dispatcher/internal/orchestrator"
	"github.com/tendant/odm-dispatcher/internal/process"
	"github.com/tendant/odm-dispatcher/internal/share"
	"github.com/tendant/odm-dispatcher/internal/upload"
	"github.com/tendant/odm-dispatcher/internal/wait"
	"github.com/tendant/odm-dispatcher/pkg/schema"
)

// JobTemplate holds the fixed parts of every launched job.
type JobTemplate struct {
	Image         string
	CPU           float64
	MemoryGB      float64
	RestartPolicy string
	CommandLine   string
	Registry      orchestrator.RegistryAuth
	Volume        orchestrator.FileVolume
}

// Options configures a Dispatcher.
type Options struct {
	Job                JobTemplate
	OutputDir          string
	PollInterval       time.Duration
	Timeout            time.Duration
	MaxQueryErrors     int
	ValidateInput      bool
	TerminateOnTimeout bool
	ResultSubject      string
}

// Deps are the collaborators a Dispatcher drives.
type Deps struct {
	Mount        *share.Mount
	Orchestrator orchestrator.Orchestrator
	Uploader     *upload.Client
	// Locker defaults to lock.Noop.
	Locker lock.Locker
	// Events may be nil.
	Events EventPublisher
	// Clock defaults to the wall clock.
	Clock  wait.Clock
	Logger *slog.Logger
}

type Dispatcher struct {
	opts     Options
	mount    *share.Mount
	orch     orchestrator.Orchestrator
	uploader *upload.Client
	locker   lock.Locker
	events   EventPublisher
	clock    wait.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

func New(opts Options, deps Deps) *Dispatcher {
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = wait.RealClock
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Dispatcher{
		opts:     opts,
		mount:    deps.Mount,
		orch:     deps.Orchestrator,
		uploader: deps.Uploader,
		locker:   deps.Locker,
		events:   deps.Events,
		clock:    deps.Clock,
		logger:   deps.Logger,
		tracer:   otel.Tracer("odm-dispatcher"),
	}
}

// Input is an inbound file.
type Input struct {
	// ID correlates the invocation with its trigger; a UUID is generated
	// when empty.
	ID   string
	Name string
	Body io.Reader
	// OnSaved, if set, runs once the input is on the mount.
	OnSaved func(path string)
}

// Result describes how an invocation ended.
type Result struct {
	DispatchID  string
	JobName     string
	InputPath   string
	Stage       schema.DispatchStage
	FailureType schema.FailureType
	JobStatus   process.Status
	Launched    bool
	Artifacts   []schema.ArtifactResult
	Err         error
}

// Counts returns the number of uploaded and failed artifacts.
func (r Result) Counts() (uploaded, failed int) {
	for _, a := range r.Artifacts {
		if a.Status == upload.StatusUploaded {
			uploaded++
		} else {
			failed++
		}
	}
	return uploaded, failed
}

// Dispatch runs the whole flow for in and blocks until it ends.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (res Result) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	req := process.NewRequest(id, in.Name, d.opts.Job.Volume.MountPath)
	state := &dispatchState{req: req, start: time.Now()}
	logger := d.logger.With("dispatch_id", req.DispatchID, "job_name", req.JobName)
	logger.Info("processing uploaded file", "name", in.Name)

	ctx, span := d.tracer.Start(ctx, "dispatch.Dispatch", trace.WithAttributes(
		attribute.String("dispatch.id", req.DispatchID),
		attribute.String("job.name", req.JobName),
	))
	defer span.End()

	res = Result{DispatchID: req.DispatchID, JobName: req.JobName}
	var held lock.Lock
	defer func() {
		res.JobStatus = req.Status
		if res.Err != nil {
			req.Fail(res.Err)
			span.SetStatus(codes.Error, string(res.FailureType))
			span.RecordError(res.Err)
		}
		metrics.DispatchesTotal.WithLabelValues(string(res.Stage)).Inc()
		d.publishDone(state, res, logger)
		if held != nil {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := held.Unlock(unlockCtx); err != nil {
				logger.Warn("release job lock failed", "err", err)
			}
		}
	}()

	fail := func(stage schema.DispatchStage, ft schema.FailureType, err error) Result {
		res.Stage = stage
		res.FailureType = ft
		res.Err = err
		d.publishLifecycle(state.addLifecycleEvent(stage, err, ft))
		return res
	}

	// The lock guards the input on the mount too, so take it before saving.
	held, err := d.locker.Lock(ctx, req.JobName)
	if err != nil {
		held = nil
		if errors.Is(err, lock.ErrNotAcquired) {
			logger.Warn("job already in progress for this file name")
		} else {
			logger.Error("acquire job lock failed", "err", err)
		}
		return fail(schema.StageFailed, schema.FailureTypeLocked, fmt.Errorf("lock %s: %w", req.JobName, err))
	}

	// Save input.
	inputPath, err := d.mount.SaveInput(req.SourceName, in.Body)
	if err != nil {
		logger.Error("save input failed", "err", err)
		return fail(schema.StageFailed, schema.FailureTypeStorage, fmt.Errorf("save input: %w", err))
	}
	req.InputPath = inputPath
	res.InputPath = inputPath
	logger.Info("saved input to shared mount", "path", inputPath)
	if in.OnSaved != nil {
		in.OnSaved(inputPath)
	}
	d.publishLifecycle(state.addLifecycleEvent(schema.StageSaved, nil, ""))

	if d.opts.ValidateInput {
		info, err := img.Inspect(inputPath)
		if err != nil {
			logger.Warn("input rejected", "path", inputPath, "err", err)
			return fail(schema.StageFailed, schema.FailureTypeValidation, err)
		}
		logger.Info("input validated", "format", info.Format, "width", info.Width, "height", info.Height)
		d.publishLifecycle(state.addLifecycleEvent(schema.StageValidated, nil, ""))
	}

	// Launch.
	if err := d.orch.Launch(ctx, d.jobSpec(req)); err != nil {
		metrics.JobLaunchesTotal.WithLabelValues("failed").Inc()
		var cmdErr *orchestrator.CommandError
		if errors.As(err, &cmdErr) {
			logger.Error("job launch failed", "exit_code", cmdErr.ExitCode, "stderr", cmdErr.Stderr)
		} else {
			logger.Error("job launch failed", "err", err)
		}
		return fail(schema.StageFailed, schema.FailureTypeLaunch, err)
	}
	metrics.JobLaunchesTotal.WithLabelValues("launched").Inc()
	res.Launched = true
	d.publishLifecycle(state.addLifecycleEvent(schema.StageLaunched, nil, ""))

	// Wait.
	d.publishLifecycle(state.addLifecycleEvent(schema.StagePolling, nil, ""))
	outcome := d.waitForJob(ctx, req, logger)
	metrics.JobWaitSeconds.WithLabelValues(string(outcome.Outcome)).Observe(outcome.Elapsed.Seconds())

	switch outcome.Outcome {
	case wait.OutcomeDone:
	case wait.OutcomeTimedOut:
		logger.Error("processing did not complete in time", "timeout", d.opts.Timeout, "polls", outcome.Polls)
		if d.opts.TerminateOnTimeout {
			d.terminate(req.JobName, logger)
		}
		return fail(schema.StageTimedOut, schema.FailureTypeTimeout,
			fmt.Errorf("job %s not terminated after %s", req.JobName, d.opts.Timeout))
	case wait.OutcomeFailed:
		logger.Error("job ended without output", "status", string(outcome.Status))
		return fail(schema.StageFailed, schema.FailureTypeJobFailed,
			fmt.Errorf("job %s ended in state %s", req.JobName, outcome.Status))
	case wait.OutcomeQueryFailed:
		logger.Error("status queries keep failing", "errors", outcome.Errors, "err", outcome.LastErr)
		return fail(schema.StageFailed, schema.FailureTypeQuery,
			fmt.Errorf("query status of %s: %w", req.JobName, outcome.LastErr))
	default:
		logger.Warn("wait canceled", "err", outcome.LastErr)
		return fail(schema.StageFailed, schema.FailureTypeCanceled, fmt.Errorf("wait for %s: %w", req.JobName, outcome.LastErr))
	}

	// Collect outputs.
	artifacts, err := d.mount.Artifacts(d.opts.OutputDir)
	if err != nil {
		logger.Error("list job outputs failed", "output_dir", d.opts.OutputDir, "err", err)
		return fail(schema.StageFailed, schema.FailureTypeStorage, err)
	}
	d.publishLifecycle(state.addLifecycleEvent(schema.StageUploading, nil, ""))
	logger.Info("uploading job outputs", "count", len(artifacts), "output_dir", d.opts.OutputDir)

	res.Artifacts = d.uploader.PublishAll(ctx, process.Stem(req.SourceName), artifacts)
	uploaded, failed := res.Counts()
	for _, a := range res.Artifacts {
		metrics.ArtifactUploadsTotal.WithLabelValues(a.Status).Inc()
	}

	res.Stage = schema.StageCompleted
	if failed > 0 {
		res.FailureType = schema.FailureTypeUpload
		res.Err = fmt.Errorf("%d of %d uploads failed", failed, len(res.Artifacts))
	}
	d.publishLifecycle(state.addLifecycleEvent(schema.StageCompleted, res.Err, res.FailureType))
	logger.Info("completed dispatch", "uploaded", uploaded, "failed", failed, "duration_ms", state.durationMs())
	return res
}

func (d *Dispatcher) jobSpec(req *process.Request) orchestrator.JobSpec {
	t := d.opts.Job
	return orchestrator.JobSpec{
		Name:          req.JobName,
		Image:         t.Image,
		CPU:           t.CPU,
		MemoryGB:      t.MemoryGB,
		RestartPolicy: t.RestartPolicy,
		CommandLine:   t.CommandLine,
		Registry:      t.Registry,
		Volume:        t.Volume,
	}
}

func (d *Dispatcher) waitForJob(ctx context.Context, req *process.Request, logger *slog.Logger) wait.Result {
	ctx, span := d.tracer.Start(ctx, "dispatch.Wait")
	defer span.End()

	p := &wait.Poller{
		Querier:        d.orch,
		Interval:       d.opts.PollInterval,
		Timeout:        d.opts.Timeout,
		MaxQueryErrors: d.opts.MaxQueryErrors,
		Clock:          d.clock,
		Logger:         logger,
		OnPoll: func(status process.Status, err error) {
			if err != nil {
				metrics.StatusPollsTotal.WithLabelValues("error").Inc()
				return
			}
			req.Observe(status)
			label := string(status)
			if label == "" {
				label = "unknown"
			}
			metrics.StatusPollsTotal.WithLabelValues(label).Inc()
		},
	}
	out := p.Until(ctx, req.JobName)
	span.SetAttributes(
		attribute.String("wait.outcome", string(out.Outcome)),
		attribute.Int("wait.polls", out.Polls),
	)
	return out
}

func (d *Dispatcher) terminate(name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := d.orch.Terminate(ctx, name); err != nil {
		logger.Error("terminate timed-out job failed", "err", err)
		return
	}
	logger.Info("terminated timed-out job")
}
