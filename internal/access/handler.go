package access

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/gatekeeper/internal/identity"
	"github.com/odyssey-erp/gatekeeper/internal/platform/httpx"
	"github.com/odyssey-erp/gatekeeper/internal/shared"
)

// IdempotencyHeader carries an optional client supplied submission key.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes access request endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	identity  identity.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw identity.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, identity: mw, validator: validator.New()}
}

// MountRoutes registers access routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.identity.Authenticate)
		r.Post("/requests", h.submit)
		r.Get("/requests/active", h.listActive)
		r.Get("/requests/completed", h.listCompleted)
		r.Get("/requests/{id}", h.get)
		r.Get("/requests/{id}/history", h.history)
		r.Post("/requests/{id}/approve", h.approve)
		r.Post("/requests/{id}/reject", h.reject)
		r.Post("/requests/{id}/cancel", h.cancel)
		r.With(h.identity.RequireAny(identity.RoleApprover, identity.RoleAuditor)).
			Get("/requests/{id}/live", h.live)
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	var payload submitPayload
	if !h.decode(w, r, &payload) {
		return
	}
	req, err := h.service.Submit(r.Context(), actor, payload.toInput(r.Header.Get(IdempotencyHeader)))
	if err != nil {
		h.respondError(w, err)
		return
	}
	status := http.StatusAccepted
	if req.Status == StatusApproved {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, toResponse(req, true))
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	items, err := h.service.ListActive(r.Context(), actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toListResponse(items, true))
}

func (h *Handler) listCompleted(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	items, err := h.service.ListCompleted(r.Context(), actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toListResponse(items, false))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, true))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toHistoryResponse(id, entries))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var payload approvePayload
	if !h.decode(w, r, &payload) {
		return
	}
	req, err := h.service.Approve(r.Context(), actor, id, payload.Comments, payload.Hours)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, true))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var payload rejectPayload
	if !h.decode(w, r, &payload) {
		return
	}
	req, err := h.service.Reject(r.Context(), actor, id, payload.Comments)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, true))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Cancel(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(req, true))
}

func (h *Handler) live(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("event")
	if raw == "" {
		raw = string(EventApproval)
	}
	typ, err := ParseEventType(raw)
	if err != nil {
		h.respondError(w, err)
		return
	}
	event, err := h.service.LiveView(r.Context(), actor, id, typ)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, event)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.ContentLength == 0 {
		return h.validate(w, target)
	}
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	return h.validate(w, target)
}

func (h *Handler) validate(w http.ResponseWriter, target any) bool {
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Error())
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request ID", "request id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "operation not permitted for role")
	case errors.Is(err, ErrRequestNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "request not found")
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", "request already actioned")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "request already submitted")
	case errors.Is(err, ErrPolicyLookup):
		h.logger.Error("approval policy lookup", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Policy Error", "approval policy not configured")
	case errors.Is(err, ErrUnknownRole):
		h.logger.Error("unknown role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Role Error", "could not determine role")
	default:
		h.logger.Error("access request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
