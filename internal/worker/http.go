package worker

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roomcommute/roomcommute/internal/api/response"
)

// JobRoutes mounts manual job triggers. A sweep runs in the background on ctx
// so it outlives the request; a tick runs inline.
func JobRoutes(ctx context.Context, d *Dispatcher) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/geocode-sweep", func(w http.ResponseWriter, r *http.Request) {
			if !d.StartSweep(ctx) {
				response.JSON(w, r, http.StatusConflict, map[string]string{"status": "sweep already running"})
				return
			}
			response.JSON(w, r, http.StatusAccepted, map[string]string{"status": "sweep started"})
		})

		r.Post("/geocode-tick", func(w http.ResponseWriter, r *http.Request) {
			processed, err := d.backfill.Tick(r.Context())
			d.metrics.recordTick(processed, err)
			if err != nil {
				d.logger.Error().Err(err).Msg("manual tick failed")
				response.InternalError(w, r, "geocode tick failed")
				return
			}
			response.JSON(w, r, http.StatusOK, map[string]bool{"processed": processed})
		})
	}
}
