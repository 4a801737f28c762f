package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/budgetauth/internal/database"
)

const healthCheckTimeout = 2 * time.Second

// Health はDBに疎通できれば200、できなければ503を返す。
// GET /health
func Health(checker database.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := database.PingWithTimeout(r.Context(), checker, healthCheckTimeout); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeText(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		writeText(w, http.StatusOK, "ok")
	}
}
