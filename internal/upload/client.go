// internal/upload/client.go
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/odm-dispatcher/internal/share"
	"github.com/tendant/odm-dispatcher/pkg/schema"
)

const (
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)

// Client republishes job outputs into a results store.
type Client struct {
	store  Store
	logger *slog.Logger
	tracer trace.Tracer
	// OnResult, if set, is called once per artifact.
	OnResult func(r schema.ArtifactResult)
}

func NewClient(store Store, logger *slog.Logger) *Client {
	return &Client{
		store:  store,
		logger: logger.With("component", "results-upload"),
		tracer: otel.Tracer("odm-dispatcher-upload"),
	}
}

// Key is the results key for an artifact of the input namespaced by stem.
// An empty stem (dot-file inputs) still yields the separator, "/rel".
func Key(stem, relPath string) string {
	return stem + "/" + relPath
}

// PublishAll uploads every artifact under stem. A failed artifact is logged
// and recorded; the remaining artifacts are still uploaded.
func (c *Client) PublishAll(ctx context.Context, stem string, artifacts []share.Artifact) []schema.ArtifactResult {
	results := make([]schema.ArtifactResult, 0, len(artifacts))
	for _, a := range artifacts {
		key := Key(stem, a.RelPath)
		res := schema.ArtifactResult{Path: a.RelPath, Key: key, Size: a.Size, Status: StatusUploaded}

		if err := c.publishOne(ctx, key, a); err != nil {
			res.Status = StatusFailed
			res.Error = err.Error()
			c.logger.Error("upload failed", "key", key, "err", err)
		} else {
			c.logger.Info("uploaded artifact", "key", key, "size", a.Size)
		}

		if c.OnResult != nil {
			c.OnResult(res)
		}
		results = append(results, res)
	}
	return results
}

func (c *Client) publishOne(ctx context.Context, key string, a share.Artifact) error {
	ctx, span := c.tracer.Start(ctx, "upload.Put", trace.WithAttributes(
		attribute.String("artifact.key", key),
		attribute.Int64("artifact.size", a.Size),
	))
	defer span.End()

	contentType, err := detectMime(a.Path)
	if err != nil {
		span.SetStatus(codes.Error, "detect mime")
		span.RecordError(err)
		return err
	}

	file, err := os.Open(a.Path)
	if err != nil {
		span.SetStatus(codes.Error, "open artifact")
		span.RecordError(err)
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	if err := c.store.Put(ctx, Object{Key: key, Body: file, Size: a.Size, ContentType: contentType}); err != nil {
		span.SetStatus(codes.Error, "put")
		span.RecordError(err)
		return err
	}
	return nil
}

// detectMime prefers the extension and falls back to sniffing the first
// 512 bytes.
func detectMime(p string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct, nil
	}

	file, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("open for mime detect: %w", err)
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read for mime detect: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}
