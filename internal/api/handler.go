// Package api binds the notification service to its REST surface. The
// layer holds no business logic: it parses and validates parameters,
// resolves the caller identity, and maps domain errors to status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
	"github.com/talentpool/herald/internal/notify"
)

// NotificationService is the slice of the notification service the REST
// layer needs.
type NotificationService interface {
	GetNotifications(ctx context.Context, recipientID uuid.UUID, opts db.ListOptions) (*notify.Page, error)
	Stats(ctx context.Context, recipientID uuid.UUID) (*db.Stats, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error)
	MarkAsRead(ctx context.Context, id, recipientID uuid.UUID) (*db.Notification, error)
	MarkAsUnread(ctx context.Context, id, recipientID uuid.UUID) (*db.Notification, error)
	MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	DeleteNotification(ctx context.Context, id, recipientID uuid.UUID) error
}

// Handler holds dependencies for the REST handlers.
type Handler struct {
	service NotificationService
	logger  *zap.Logger
	env     string
}

// NewHandler creates a REST handler. env controls whether internal error
// detail leaks into responses (never in production).
func NewHandler(service NotificationService, logger *zap.Logger, env string) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		env:     env,
	}
}

// Routes mounts the notification endpoints onto a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/notifications", h.List)
	r.Get("/notifications/stats", h.Stats)
	r.Get("/notifications/unread-count", h.UnreadCount)
	r.Patch("/notifications/mark-all-read", h.MarkAllRead)
	r.Patch("/notifications/{id}/read", h.MarkRead)
	r.Patch("/notifications/{id}/unread", h.MarkUnread)
	r.Delete("/notifications/{id}", h.Delete)
}

type errorBody struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

type successBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// List handles GET /notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	opts, err := parseListOptions(r)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	page, err := h.service.GetNotifications(r.Context(), identity.ID, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       page.Notifications,
		"pagination": page.Pagination,
	})
}

// Stats handles GET /notifications/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	stats, err := h.service.Stats(r.Context(), identity.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody{Success: true, Data: stats})
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	count, err := h.service.UnreadCount(r.Context(), identity.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody{
		Success: true,
		Data:    map[string]int64{"count": count},
	})
}

// MarkRead handles PATCH /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	n, err := h.service.MarkAsRead(r.Context(), id, identity.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody{Success: true, Data: notify.Summarize(n)})
}

// MarkUnread handles PATCH /notifications/{id}/unread.
func (h *Handler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	n, err := h.service.MarkAsUnread(r.Context(), id, identity.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody{Success: true, Data: notify.Summarize(n)})
}

// MarkAllRead handles PATCH /notifications/mark-all-read.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	modified, err := h.service.MarkAllAsRead(r.Context(), identity.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody{
		Success: true,
		Data:    map[string]int64{"modifiedCount": modified},
	})
}

// Delete handles DELETE /notifications/{id} (soft delete).
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.service.DeleteNotification(r.Context(), id, identity.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody{Success: true})
}

type validationError string

func (e validationError) Error() string { return string(e) }

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, validationError("id must be a valid UUID")
	}
	return id, nil
}

func parseListOptions(r *http.Request) (db.ListOptions, error) {
	opts := db.ListOptions{Page: 1, Limit: 20}
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			return opts, validationError("page must be a positive integer")
		}
		opts.Page = p
	}

	if raw := q.Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 1 || l > 100 {
			return opts, validationError("limit must be between 1 and 100")
		}
		opts.Limit = l
	}

	if raw := q.Get("type"); raw != "" {
		if !db.ValidType(raw) {
			return opts, validationError("unknown notification type: " + raw)
		}
		opts.Type = raw
	}

	if raw := q.Get("priority"); raw != "" {
		if !db.ValidPriority(raw) {
			return opts, validationError("unknown priority: " + raw)
		}
		opts.Priority = raw
	}

	if raw := q.Get("isRead"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, validationError("isRead must be true or false")
		}
		opts.IsRead = &b
	}

	return opts, nil
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Success: false,
		Message: "Validation failed",
		Errors:  []string{err.Error()},
	})
}

// writeServiceError maps domain errors to status codes: not-found (which
// deliberately covers ownership failures) to 404, everything else to 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{
			Success: false,
			Message: "Notification not found",
		})
		return
	}

	h.logger.Error("request failed",
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)

	body := errorBody{Success: false, Message: "Internal server error"}
	if h.env != "production" {
		body.Errors = []string{err.Error()}
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
