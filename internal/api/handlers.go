package api

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/gate"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/versions"
)

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.CheckReadiness(r.Context()); err != nil {
				slog.Warn("Readiness check failed", "error", err)
				gate.WriteJSONError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, ReadinessResponse{Status: "ready"})
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, versions.GetVersionInfo())
}

// checkAdminHandler reports whether the caller is on the admin allow-list.
// Anonymous callers get a negative answer rather than an error.
func checkAdminHandler(policy gate.Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, _ := gate.SubjectFromContext(r.Context())
		if !subject.IsAuthenticated() {
			writeJSONResponse(w, http.StatusOK, CheckAdminResponse{})
			return
		}

		writeJSONResponse(w, http.StatusOK, CheckAdminResponse{
			IsAdmin:         policy.Check(subject) == nil,
			IsAuthenticated: true,
			UserID:          subject.ID(),
		})
	}
}

// writeJSONResponse writes a JSON response with the given data
func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
