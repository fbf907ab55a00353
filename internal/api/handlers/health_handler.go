package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"mystore/internal/engine/health"
	"mystore/internal/platform/config"
)

type HealthHandler struct {
	db    *sql.DB
	beats *health.Recorder
	app   config.AppConfig
	now   func() time.Time
}

func NewHealthHandler(db *sql.DB, beats *health.Recorder, app config.AppConfig) *HealthHandler {
	return &HealthHandler{db: db, beats: beats, app: app, now: time.Now}
}

// Up is the liveness probe. It touches no dependency.
func (h *HealthHandler) Up(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"app":    h.app.Name,
		"env":    h.app.Env,
		"time":   h.now().Unix(),
	})
}

// Check reports database reachability and heartbeat freshness of the
// scheduler and the job queue.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)

	if err := h.db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("health check: database ping failed")
		checks["database"] = "unhealthy"
	} else {
		checks["database"] = "healthy"
	}

	for name, key := range map[string]string{"scheduler": health.SchedulerBeatKey, "queue": health.QueueBeatKey} {
		checks[name] = h.beatStatus(ctx, key)
	}

	status := "healthy"
	for _, check := range checks {
		if len(check) >= 9 && check[:9] == "unhealthy" {
			status = "degraded"
			break
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: h.now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

func (h *HealthHandler) beatStatus(ctx context.Context, key string) string {
	if h.beats == nil {
		return "unhealthy: heartbeat store not configured"
	}
	at, ok, err := h.beats.LastBeat(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("health check: heartbeat read failed")
		return "unhealthy"
	}
	if !ok {
		return "unhealthy: no heartbeat in the last " + health.BeatTTL.String()
	}
	return "healthy (" + h.now().Sub(at).Round(time.Second).String() + " ago)"
}
