package httpapi

import (
	"net/http"

	"taskrouter/internal/apperr"
)

// errStreamingUnsupported is wrapped with ErrUnavailable (not a bare error)
// so writeError's store-error heuristic doesn't misclassify it as a
// persistence failure — it maps to a 503 like a rate-limited request.
var errStreamingUnsupported = apperr.UnavailableError("streaming unsupported by response writer")

type healthResponse struct {
	Status         string `json:"status"`
	ActiveDrivers  int    `json:"active_drivers"`
	Accepting      bool   `json:"accepting"`
}

// health reports liveness plus enough routing-engine state (spec §8) for an
// operator to tell a draining server apart from a healthy one.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		ActiveDrivers: h.deps.Engine.ActiveDrivers(),
		Accepting:     h.deps.Engine.Accepting(),
	})
}
