package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luciancaetano/kephaschat/internal/relay"
)

// routes mounts the HTTP endpoints served next to /ws.
func routes(engine *relay.Engine, gatherer prometheus.Gatherer, logger *zap.Logger) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":      "ok",
				"online":      len(engine.Online()),
				"connections": engine.Connections(),
			})
		})
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

		// Called by the registration service after an account is created.
		r.Post("/internal/users", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Username string `json:"username"`
				UserID   string `json:"userId"`
			}
			if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 4096)).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
				return
			}

			n, err := engine.AnnounceUser(req.Context(), body.Username, body.UserID)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			logger.Info("new user announced", zap.String("identity", body.Username), zap.Int("sessions", n))
			writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
