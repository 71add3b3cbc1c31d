package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/gate"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/users"
)

// MaxBodyBytes caps a delivery's body
const MaxBodyBytes = 1 << 20

// Event types handled by the directory
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Results reported to the EventRecorder
const (
	ResultCreated  = "created"
	ResultUpdated  = "updated"
	ResultDeleted  = "deleted"
	ResultIgnored  = "ignored"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
)

// Event is a lifecycle delivery
type Event struct {
	Type string    `json:"type" validate:"required"`
	Data EventData `json:"data"`
}

// EventData is the user object carried by an Event
type EventData struct {
	ID             string         `json:"id" validate:"required"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
}

// EmailAddress is one of a user's addresses
type EmailAddress struct {
	EmailAddress string `json:"email_address"`
}

// Profile maps the event to the directory's profile fields. The first
// address is the user's email.
func (d EventData) Profile() users.Profile {
	p := users.Profile{FirstName: d.FirstName, LastName: d.LastName}
	if len(d.EmailAddresses) > 0 {
		p.Email = d.EmailAddresses[0].EmailAddress
	}
	return p
}

// EventRecorder observes processed deliveries
type EventRecorder interface {
	RecordWebhookEvent(ctx context.Context, eventType, result string)
}

// Handler serves the lifecycle webhook endpoint.
type Handler struct {
	verifier *Verifier
	store    users.Store
	recorder EventRecorder
	validate *validator.Validate
}

// Option configures a Handler
type Option func(*Handler)

// WithEventRecorder sets the recorder for processed deliveries
func WithEventRecorder(rec EventRecorder) Option {
	return func(h *Handler) {
		h.recorder = rec
	}
}

// NewHandler creates a Handler
func NewHandler(verifier *Verifier, store users.Store, opts ...Option) *Handler {
	h := &Handler{
		verifier: verifier,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP verifies the delivery and applies it to the store. Store failures
// are logged and still acknowledged so the provider stops retrying.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			gate.WriteJSONError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		gate.WriteJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := h.verifier.Verify(r.Header, body); err != nil {
		slog.Warn("Rejected webhook delivery", "error", err, "svix_id", r.Header.Get(HeaderID))
		h.record(r.Context(), "other", ResultRejected)
		if errors.Is(err, ErrMissingHeaders) {
			gate.WriteJSONError(w, http.StatusBadRequest, ErrMissingHeaders.Error())
			return
		}
		gate.WriteJSONError(w, http.StatusBadRequest, ErrInvalidSignature.Error())
		return
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		gate.WriteJSONError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	if err := h.validate.Struct(evt); err != nil {
		slog.Debug("Webhook payload failed validation", "error", err)
		gate.WriteJSONError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	result := h.apply(r.Context(), evt)
	h.record(r.Context(), eventLabel(evt.Type), result)

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) apply(ctx context.Context, evt Event) string {
	id := evt.Data.ID
	logger := slog.With("event", evt.Type, "external_id", id)

	switch evt.Type {
	case EventUserCreated:
		if _, err := h.store.Create(ctx, id, evt.Data.Profile()); err != nil {
			logger.Error("Failed to create user", "error", err)
			return ResultFailed
		}
		logger.Info("User created")
		return ResultCreated

	case EventUserUpdated:
		_, err := h.store.Update(ctx, id, evt.Data.Profile())
		if errors.Is(err, users.ErrNotFound) {
			// missed the create, e.g. a memory store that restarted
			_, err = h.store.Create(ctx, id, evt.Data.Profile())
			if err == nil {
				logger.Info("User created from update")
				return ResultCreated
			}
		}
		if err != nil {
			logger.Error("Failed to update user", "error", err)
			return ResultFailed
		}
		logger.Info("User updated")
		return ResultUpdated

	case EventUserDeleted:
		if err := h.store.Delete(ctx, id); err != nil {
			logger.Error("Failed to delete user", "error", err)
			return ResultFailed
		}
		logger.Info("User deleted")
		return ResultDeleted

	default:
		logger.Debug("Ignoring webhook event")
		return ResultIgnored
	}
}

func (h *Handler) record(ctx context.Context, eventType, result string) {
	if h.recorder != nil {
		h.recorder.RecordWebhookEvent(ctx, eventType, result)
	}
}

// eventLabel bounds the metric label set to the handled types
func eventLabel(t string) string {
	switch t {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		return t
	default:
		return "other"
	}
}
