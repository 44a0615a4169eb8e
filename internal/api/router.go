// Package api exposes health, metrics and provider webhooks over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ocgroups/meetsync/internal/logging"
	"github.com/ocgroups/meetsync/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecordingStore saves recording locations reported by providers.
type RecordingStore interface {
	ApplyRecordingURL(ctx context.Context, providerID, providerMeetingID, url string) error
}

type Config struct {
	DB            Pinger
	Recordings    RecordingStore
	Gatherer      prometheus.Gatherer
	WebhookSecret string
	Logger        logging.Logger
}

type recordingWebhook struct {
	ProviderID        string `json:"provider_id"`
	ProviderMeetingID string `json:"provider_meeting_id"`
	RecordingURL      string `json:"recording_url"`
}

func NewRouter(cfg Config) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(cfg.Logger))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := cfg.DB.Ping(ctx); err != nil {
			cfg.Logger.WithError(err).Warn("readiness check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	router.Post("/webhooks/recordings", recordingHandler(cfg))

	return router
}

func recordingHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || provider.VerifyToken(cfg.WebhookSecret, token) != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body recordingWebhook
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if body.ProviderID == "" || body.ProviderMeetingID == "" || body.RecordingURL == "" {
			http.Error(w, "provider_id, provider_meeting_id and recording_url are required", http.StatusBadRequest)
			return
		}

		if err := cfg.Recordings.ApplyRecordingURL(r.Context(), body.ProviderID, body.ProviderMeetingID, body.RecordingURL); err != nil {
			cfg.Logger.WithError(err).WithField("provider_meeting_id", body.ProviderMeetingID).Error("failed to store recording url")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.WithFields(logging.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
