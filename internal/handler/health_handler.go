package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Health answers "ok" when every dependency responds within two seconds.
func Health(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				slog.Warn("health check failed", "dependency", c.Name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
