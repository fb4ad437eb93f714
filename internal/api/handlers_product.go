package api

import (
	"errors"
	"net/http"

	"github.com/fabrica3d/fabrica/internal/models"
	"github.com/fabrica3d/fabrica/internal/pipeline"
)

// ProductHandler exposes the product generation pipeline.
type ProductHandler struct {
	orch *pipeline.Orchestrator
}

func NewProductHandler(orch *pipeline.Orchestrator) *ProductHandler {
	return &ProductHandler{orch: orch}
}

type productCreateRequest struct {
	Prompt     string `json:"prompt"`
	ImageCount int    `json:"image_count"`
}

type productEditRequest struct {
	Prompt string `json:"prompt"`
}

type rewindRequest struct {
	IterationIndex int `json:"iteration_index"`
}

// Create handles POST /product/create. It acknowledges immediately; the run
// proceeds in the background and is observed via /product/status.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ImageCount == 0 {
		req.ImageCount = 3
	}

	status, err := h.orch.StartCreate(r.Context(), req.Prompt, req.ImageCount)
	if err != nil {
		writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Edit handles POST /product/edit.
func (h *ProductHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req productEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	status, err := h.orch.StartEdit(r.Context(), req.Prompt)
	if err != nil {
		writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Get handles GET /product: the whole persisted session blob.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.orch.Session(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Status handles GET /product/status: the poll-friendly projection.
func (h *ProductHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.orch.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Recover handles POST /product/recover.
func (h *ProductHandler) Recover(w http.ResponseWriter, r *http.Request) {
	report, err := h.orch.Recover(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Rewind handles POST /product/rewind.
func (h *ProductHandler) Rewind(w http.ResponseWriter, r *http.Request) {
	var req rewindRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, err := h.orch.Rewind(r.Context(), req.IterationIndex)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, models.ErrRewindOutOfRange):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Clear handles POST /product/clear.
func (h *ProductHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sess, err := h.orch.Clear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// writeStartError maps trigger failures: busy conflicts are 409, validation
// and precondition failures 400, anything else (store failures) 500.
func writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrNoBaseProduct),
		errors.Is(err, models.ErrInvalidDimensions):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
