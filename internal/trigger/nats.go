package trigger

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/tendant/odm-dispatcher/internal/bus"
	"github.com/tendant/odm-dispatcher/internal/dispatch"
	"github.com/tendant/odm-dispatcher/internal/upload"
)

// NATSConfig selects the trigger subject and where referenced blobs live.
type NATSConfig struct {
	Subject string
	Queue   string
	// SourceContainer is used when an event omits its container.
	SourceContainer string
}

// NATS dispatches BlobCreated events from a queue subscription.
type NATS struct {
	cfg    NATSConfig
	source upload.Source
	runner *Runner
	logger *slog.Logger
}

func NewNATS(cfg NATSConfig, source upload.Source, runner *Runner, logger *slog.Logger) *NATS {
	return &NATS{
		cfg:    cfg,
		source: source,
		runner: runner,
		logger: logger.With("trigger", "nats", "subject", cfg.Subject),
	}
}

// Subscribe starts consuming. ctx bounds source downloads.
func (n *NATS) Subscribe(ctx context.Context, c *bus.Client) (*nats.Subscription, error) {
	return c.QueueSubscribe(n.cfg.Subject, n.cfg.Queue, func(data []byte) {
		n.Handle(ctx, data)
	})
}

// Handle decodes one message and starts its dispatch.
func (n *NATS) Handle(ctx context.Context, data []byte) {
	evt, err := DecodeBlobCreated(data)
	if err != nil {
		n.logger.Warn("dropping trigger event", "err", err)
		return
	}

	logger := n.logger.With("event_id", evt.ID, "name", evt.Name)
	if len(evt.Data) > 0 {
		logger.Info("received blob event", "bytes", len(evt.Data))
		n.runner.Go(dispatch.Input{ID: evt.ID, Name: evt.Name, Body: bytes.NewReader(evt.Data)}, nil)
		return
	}

	if n.source == nil {
		logger.Error("event carries no data and no source store is configured")
		return
	}
	container := evt.Container
	if container == "" {
		container = n.cfg.SourceContainer
	}
	body, err := n.source.Open(ctx, container, evt.Name)
	if err != nil {
		logger.Error("open source blob failed", "container", container, "err", err)
		return
	}
	logger.Info("received blob event", "container", container, "size", evt.Size)
	n.runner.Go(dispatch.Input{ID: evt.ID, Name: evt.Name, Body: body}, body)
}
