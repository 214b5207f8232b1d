package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the status returned by report as JSON. Unhealthy statuses are answered
// with 503 so load balancers and orchestrators can act on the code alone.
func Handler(report func() Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := report()

		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
