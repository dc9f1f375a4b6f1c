// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adiadia/fraud-consumer/internal/metrics"
)

type Deps struct {
	Pool        StatsProvider
	DeadLetters DeadLetterLister
	Health      HealthChecker
	Logger      *slog.Logger

	ModelVersion func() string
	Version      string
	Commit       string
	BuildDate    string
}

// NewRouter builds the ops-only HTTP surface: health, metrics, version,
// pipeline stats, and read-only dead-letter inspection. There is no
// public API; the pipeline's inputs and outputs are the queue and the
// stores.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")

		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := deps.Health.Check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{
					"ok":    false,
					"error": err.Error(),
				})
				return
			}
		}

		body := map[string]any{"ok": true}
		if deps.ModelVersion != nil {
			body["model"] = deps.ModelVersion()
		}
		writeJSON(w, http.StatusOK, body)
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- PIPELINE STATS ----------------

	if deps.Pool != nil {
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, deps.Pool.Stats())
		})
	}

	// ---------------- DEAD LETTERS (READ-ONLY) ----------------

	if deps.DeadLetters != nil {
		r.Get("/deadletters", func(w http.ResponseWriter, r *http.Request) {
			limit := 50
			if raw := r.URL.Query().Get("limit"); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil || parsed <= 0 {
					http.Error(w, "invalid limit", http.StatusBadRequest)
					return
				}
				limit = parsed
			}

			records, err := deps.DeadLetters.List(r.Context(), limit)
			if err != nil {
				logger.Error("list dead letters failed", "error", err)
				http.Error(w, "failed to list dead letters", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"count":   len(records),
				"records": records,
			})
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
