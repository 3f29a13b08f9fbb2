package trigger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/odm-dispatcher/internal/dispatch"
)

// NewRouter serves health, metrics and a manual upload endpoint. A POST to
// /v1/dispatch/{name} starts a dispatch with the request body as the file.
func NewRouter(runner *Runner, maxBytes int64, logger *slog.Logger) http.Handler {
	logger = logger.With("trigger", "http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/dispatch/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := strings.TrimSpace(chi.URLParam(req, "name"))
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			http.Error(w, "invalid file name", http.StatusBadRequest)
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBytes))
		if err != nil {
			logger.Warn("reject upload", "name", name, "err", err)
			http.Error(w, "request body too large or unreadable", http.StatusRequestEntityTooLarge)
			return
		}
		if len(data) == 0 {
			http.Error(w, "empty body", http.StatusBadRequest)
			return
		}

		id := uuid.NewString()
		runner.Go(dispatch.Input{ID: id, Name: name, Body: bytes.NewReader(data)}, nil)
		logger.Info("accepted upload", "name", name, "bytes", len(data), "dispatch_id", id, "request_id", middleware.GetReqID(req.Context()))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"dispatch_id": id, "name": name})
	})

	return r
}
