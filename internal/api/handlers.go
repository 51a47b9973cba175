package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/miradorstack/model-graveyard/internal/engine"
	"github.com/miradorstack/model-graveyard/internal/models"
	"github.com/miradorstack/model-graveyard/internal/repo"
	"github.com/miradorstack/model-graveyard/internal/roster"
	"github.com/miradorstack/model-graveyard/internal/services"
	"github.com/miradorstack/model-graveyard/internal/utils"
)

const defaultHistoryLimit = 20

// GraveyardService is the behaviour the HTTP layer exposes.
type GraveyardService interface {
	Refresh(ctx context.Context, simulate bool) (models.StatusSnapshot, error)
	Status(ctx context.Context) (models.StatusSnapshot, error)
	History(ctx context.Context, limit int) ([]models.StatusSnapshot, error)
	Models(ctx context.Context) (map[engine.Tier][]models.TierModel, error)
	Suggest(ctx context.Context, failedModel string) (string, bool, error)
	ReplaceModel(ctx context.Context, id, newModel string) (services.ReplaceResult, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc        GraveyardService
	logger     *slog.Logger
	rosterPath string
}

// NewHandler creates a new API handler. rosterPath is only used in error messages.
func NewHandler(svc GraveyardService, logger *slog.Logger, rosterPath string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, rosterPath: rosterPath}
}

/* ---------------- GET /api/status ---------------- */

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.svc.Status(r.Context())
	switch {
	case errors.Is(err, repo.ErrSnapshotNotFound):
		writeError(w, http.StatusNotFound, "Status file not found. Run a probe first.")
		return
	case err != nil:
		h.internalError(w, "read status", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

/* ---------------- GET /api/models ---------------- */

func (h *Handler) GetModels(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.svc.Models(r.Context())
	if err != nil {
		h.internalError(w, "list models", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

/* ---------------- GET /api/suggest-replacement ---------------- */

type suggestResponse struct {
	FailedModel string  `json:"failed_model"`
	Suggestion  *string `json:"suggestion"`
}

func (h *Handler) SuggestReplacement(w http.ResponseWriter, r *http.Request) {
	failed := r.URL.Query().Get("model")
	if failed == "" {
		writeError(w, http.StatusBadRequest, "Missing 'model' query parameter")
		return
	}

	suggestion, ok, err := h.svc.Suggest(r.Context(), failed)
	switch {
	case errors.Is(err, repo.ErrSnapshotNotFound):
		writeError(w, http.StatusNotFound, "Status file not found")
		return
	case errors.Is(err, services.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Missing 'model' query parameter")
		return
	case err != nil:
		h.internalError(w, "suggest replacement", err)
		return
	}

	resp := suggestResponse{FailedModel: failed}
	if ok {
		resp.Suggestion = &suggestion
	}
	writeJSON(w, http.StatusOK, resp)
}

/* ---------------- POST /api/replace-model ---------------- */

type replaceRequest struct {
	AgentID  string `json:"agent_id"`
	NewModel string `json:"new_model"`
}

type replaceResponse struct {
	OK bool `json:"ok"`
	services.ReplaceResult
}

type replaceFailure struct {
	Error    string `json:"error"`
	OK       bool   `json:"ok"`
	AgentID  string `json:"agent_id"`
	OldModel string `json:"old_model"`
	NewModel string `json:"new_model"`
}

func (h *Handler) ReplaceModel(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil || len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req := replaceRequest{AgentID: stringField(raw, "agent_id"), NewModel: stringField(raw, "new_model")}
	if req.AgentID == "" || req.NewModel == "" {
		writeError(w, http.StatusBadRequest, "Missing 'agent_id' or 'new_model'")
		return
	}

	result, err := h.svc.ReplaceModel(r.Context(), req.AgentID, req.NewModel)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, replaceResponse{OK: true, ReplaceResult: result})
	case errors.Is(err, roster.ErrInvalidID):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid agent_id format: %s", req.AgentID))
	case errors.Is(err, services.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Missing 'agent_id' or 'new_model'")
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Config not found: %s", h.rosterPath))
	case errors.Is(err, roster.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrStatusUpdate):
		h.logger.Error("status update after replace failed", slog.String("agent_id", req.AgentID), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, replaceFailure{
			Error:    err.Error(),
			AgentID:  result.AgentID,
			OldModel: result.OldModel,
			NewModel: result.NewModel,
		})
	default:
		h.internalError(w, "replace model", err)
	}
}

// stringField reads a string member, treating any other JSON type as absent.
func stringField(raw map[string]json.RawMessage, key string) string {
	var s string
	if v, ok := raw[key]; ok {
		_ = json.Unmarshal(v, &s)
	}
	return s
}

/* ---------------- POST /api/refresh ---------------- */

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	simulate, _ := strconv.ParseBool(r.URL.Query().Get("simulate"))
	snapshot, err := h.svc.Refresh(r.Context(), simulate)
	if err != nil {
		h.logger.Error("refresh failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "Refresh failed: "+utils.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

/* ---------------- GET /api/history ---------------- */

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Invalid 'limit' query parameter")
			return
		}
		limit = parsed
	}
	history, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.internalError(w, "read history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": history})
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, utils.Message(err))
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
