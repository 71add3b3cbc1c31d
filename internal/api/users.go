package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/gate"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/users"
)

// maxRoleBodyBytes bounds the role update payload
const maxRoleBodyBytes = 4 << 10

// adminUsersRoutes serves the user directory to admins. The gate already
// denies non-admins on /api/admin; each handler checks again so the routes
// stay closed if they are ever mounted elsewhere.
type adminUsersRoutes struct {
	store    users.Store
	policy   gate.Policy
	validate *validator.Validate
}

func newAdminUsersRoutes(store users.Store, policy gate.Policy) *adminUsersRoutes {
	return &adminUsersRoutes{
		store:    store,
		policy:   policy,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router returns the routes mounted under AdminUsersPath
func (a *adminUsersRoutes) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", a.list)
	r.Patch("/{id}/role", a.setRole)
	return r
}

func (a *adminUsersRoutes) authorize(w http.ResponseWriter, r *http.Request) bool {
	subject, _ := gate.SubjectFromContext(r.Context())
	switch err := a.policy.Check(subject); {
	case err == nil:
		return true
	case errors.Is(err, gate.ErrUnauthenticated):
		gate.WriteJSONError(w, http.StatusUnauthorized, gate.MessageAuthenticationRequired)
	default:
		gate.WriteJSONError(w, http.StatusForbidden, gate.MessageAdminRequired)
	}
	return false
}

func (a *adminUsersRoutes) list(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r) {
		return
	}

	list, err := a.store.List(r.Context())
	if err != nil {
		slog.Error("Failed to list users", "error", err)
		gate.WriteJSONError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if list == nil {
		list = []*users.User{}
	}

	writeJSONResponse(w, http.StatusOK, UserListResponse{Users: list, Total: len(list)})
}

func (a *adminUsersRoutes) setRole(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r) {
		return
	}

	var req SetRoleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRoleBodyBytes)).Decode(&req); err != nil {
		gate.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		slog.Debug("Role update failed validation", "error", err)
		gate.WriteJSONError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	id := chi.URLParam(r, "id")
	user, err := a.store.SetRole(r.Context(), id, users.Role(req.Role))
	switch {
	case err == nil:
	case errors.Is(err, users.ErrInvalidRole):
		gate.WriteJSONError(w, http.StatusBadRequest, "Invalid role")
		return
	case errors.Is(err, users.ErrNotFound):
		gate.WriteJSONError(w, http.StatusNotFound, "user not found")
		return
	default:
		slog.Error("Failed to update user role", "error", err, "external_id", id)
		gate.WriteJSONError(w, http.StatusInternalServerError, "failed to update role")
		return
	}

	subject, _ := gate.SubjectFromContext(r.Context())
	slog.Info("User role updated",
		"external_id", id,
		"role", user.Role,
		"by", subject.ID())
	writeJSONResponse(w, http.StatusOK, user)
}
