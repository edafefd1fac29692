package handlers

import (
	"net/http"

	"github.com/dropDatabas3/portero/internal/app"
	httpx "github.com/dropDatabas3/portero/internal/http"
)

// NewReadyzHandler verifica store y cache. 503 si alguno no responde.
func NewReadyzHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{"store": "ok", "cache": "ok"}
		healthy := true

		if err := c.Store.Ping(ctx); err != nil {
			checks["store"] = err.Error()
			healthy = false
		}
		if err := c.Cache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, status, checks)
	}
}
