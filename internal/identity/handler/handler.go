package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"uniid/internal/identity/models"
	"uniid/internal/platform/middleware"
	dErrors "uniid/pkg/domain-errors"
	"uniid/pkg/platform/httputil"
	"uniid/pkg/requestcontext"
)

// Service defines the identity operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, candidate models.Candidate) (*models.Identity, error)
	Get(ctx context.Context, id string) (*models.Identity, error)
	List(ctx context.Context) ([]*models.Identity, error)
	Search(ctx context.Context, filter models.SearchFilter) ([]*models.Identity, error)
	Edit(ctx context.Context, id string, proposed map[string]string) (*models.EditResult, error)
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]models.AuditEntry, error)
	Transitions(ctx context.Context, id string) ([]models.TransitionOption, error)
	CheckTransition(ctx context.Context, current, target, since string) bool
}

// Handler serves the identity admin API.
type Handler struct {
	logger     *slog.Logger
	identities Service
	adminToken string
}

// New creates a new identity Handler.
func New(identities Service, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{
		logger:     logger,
		identities: identities,
		adminToken: adminToken,
	}
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(h.adminToken, h.logger))

		r.Post("/identities", h.handleCreate)
		r.Get("/identities", h.handleList)
		r.Post("/identities/search", h.handleSearch)
		r.Get("/identities/{id}", h.handleGet)
		r.Patch("/identities/{id}", h.handleEdit)
		r.Delete("/identities/{id}", h.handleDelete)
		r.Get("/identities/{id}/history", h.handleHistory)
		r.Get("/identities/{id}/transitions", h.handleTransitions)
		r.Post("/lifecycle/check", h.handleCheckTransition)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var candidate models.Candidate
	if err := decodeJSON(w, r, &candidate); err != nil {
		h.badRequest(ctx, w, "invalid create identity request", err)
		return
	}

	identity, err := h.identities.Create(ctx, candidate)
	if err != nil {
		h.writeServiceError(ctx, w, "create identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createResponse{ID: identity.ID})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identities, err := h.identities.List(r.Context())
	if err != nil {
		h.writeServiceError(r.Context(), w, "list identities", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Identities: nonNil(identities)})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(ctx, w, "invalid search request", err)
		return
	}

	identities, err := h.identities.Search(ctx, req.filter())
	if err != nil {
		h.writeServiceError(ctx, w, "search identities", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Identities: nonNil(identities)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identities.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "get identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, identity)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var raw map[string]any
	if err := decodeJSON(w, r, &raw); err != nil {
		h.badRequest(ctx, w, "invalid edit request", err)
		return
	}
	proposed, err := proposalFromJSON(raw)
	if err != nil {
		h.badRequest(ctx, w, "invalid edit request", err)
		return
	}

	result, err := h.identities.Edit(ctx, chi.URLParam(r, "id"), proposed)
	if err != nil {
		h.writeServiceError(ctx, w, "edit identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.identities.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(r.Context(), w, "delete identity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.identities.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "load history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

func (h *Handler) handleTransitions(w http.ResponseWriter, r *http.Request) {
	options, err := h.identities.Transitions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "list transitions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transitionsResponse{Transitions: options})
}

func (h *Handler) handleCheckTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req checkTransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(ctx, w, "invalid lifecycle check request", err)
		return
	}
	allowed := h.identities.CheckTransition(ctx, req.Current, req.Target, req.StatusSince)
	httputil.WriteJSON(w, http.StatusOK, checkTransitionResponse{Allowed: allowed})
}

func (h *Handler) badRequest(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
}

// writeServiceError logs server-side failures at error level and client
// mistakes at warn level before rendering the envelope.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"code", string(code),
		"error", err.Error(),
	}
	if code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
		h.logger.ErrorContext(ctx, "identity request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "identity request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

func nonNil(identities []*models.Identity) []*models.Identity {
	if identities == nil {
		return []*models.Identity{}
	}
	return identities
}
