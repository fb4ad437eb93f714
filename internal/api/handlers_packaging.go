package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fabrica3d/fabrica/internal/models"
	"github.com/fabrica3d/fabrica/internal/panels"
)

// PackagingHandler exposes the packaging texture flows.
type PackagingHandler struct {
	svc *panels.Service
}

func NewPackagingHandler(svc *panels.Service) *PackagingHandler {
	return &PackagingHandler{svc: svc}
}

type panelGenerateRequest struct {
	PanelID         string                 `json:"panel_id"`
	Prompt          string                 `json:"prompt"`
	PackageType     string                 `json:"package_type"`
	PanelDims       models.PanelDimensions `json:"panel_dimensions"`
	PackageDims     models.Dimensions      `json:"package_dimensions"`
	ReferenceMockup string                 `json:"reference_mockup,omitempty"`
}

type bulkGenerateRequest struct {
	Prompt          string                            `json:"prompt"`
	PackageType     string                            `json:"package_type"`
	PackageDims     models.Dimensions                 `json:"package_dimensions"`
	PanelIDs        []string                          `json:"panel_ids"`
	PanelsInfo      map[string]models.PanelDimensions `json:"panels_info"`
	ReferenceMockup string                            `json:"reference_mockup,omitempty"`
}

type updateDimensionsRequest struct {
	PackageType string            `json:"package_type"`
	Dimensions  models.Dimensions `json:"dimensions"`
}

// GeneratePanel handles POST /packaging/panels/generate.
func (h *PackagingHandler) GeneratePanel(w http.ResponseWriter, r *http.Request) {
	var req panelGenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.svc.GeneratePanel(r.Context(), panels.PanelRequest{
		PanelID:         req.PanelID,
		Prompt:          req.Prompt,
		Shape:           req.PackageType,
		PanelDims:       req.PanelDims,
		PackageDims:     req.PackageDims,
		ReferenceMockup: req.ReferenceMockup,
	})
	if err != nil {
		writeStartError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "generating",
		"panel_id": req.PanelID,
		"message":  fmt.Sprintf("Generating texture for %s panel", req.PanelID),
	})
}

// GenerateAll handles POST /packaging/panels/generate-all.
func (h *PackagingHandler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	var req bulkGenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.svc.GenerateAll(r.Context(), panels.BulkRequest{
		Prompt:          req.Prompt,
		Shape:           req.PackageType,
		PackageDims:     req.PackageDims,
		PanelIDs:        req.PanelIDs,
		PanelDims:       req.PanelsInfo,
		ReferenceMockup: req.ReferenceMockup,
	})
	if err != nil {
		writeStartError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "generating",
		"panel_ids":    req.PanelIDs,
		"message":      fmt.Sprintf("Generating textures for %d panels", len(req.PanelIDs)),
		"total_panels": len(req.PanelIDs),
	})
}

// State handles GET /packaging/state: the whole persisted session blob.
func (h *PackagingHandler) State(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Status handles GET /packaging/status: the poll-friendly run status.
func (h *PackagingHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetTexture handles GET /packaging/panels/{panelID}/texture. A panel that
// is still generating answers 202, one never requested answers 404.
func (h *PackagingHandler) GetTexture(w http.ResponseWriter, r *http.Request) {
	panelID := chi.URLParam(r, "panelID")

	texture, err := h.svc.Texture(r.Context(), panelID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTextureInProgress):
			writeError(w, http.StatusAccepted, fmt.Sprintf("texture generation in progress for panel %s", panelID))
		case errors.Is(err, models.ErrTextureNotFound):
			writeError(w, http.StatusNotFound, fmt.Sprintf("no texture found for panel %s", panelID))
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, texture)
}

// DeleteTexture handles DELETE /packaging/panels/{panelID}/texture.
func (h *PackagingHandler) DeleteTexture(w http.ResponseWriter, r *http.Request) {
	panelID := chi.URLParam(r, "panelID")

	if err := h.svc.DeleteTexture(r.Context(), panelID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "panel_id": panelID})
}

// UpdateDimensions handles POST /packaging/update-dimensions.
func (h *PackagingHandler) UpdateDimensions(w http.ResponseWriter, r *http.Request) {
	var req updateDimensionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, err := h.svc.UpdateDimensions(r.Context(), req.PackageType, req.Dimensions)
	if err != nil {
		writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "updated",
		"package_type": sess.CurrentShape,
		"dimensions":   sess.ActiveShape().Dimensions,
	})
}

// ResetShape handles POST /packaging/reset-current-shape.
func (h *PackagingHandler) ResetShape(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.ResetShape(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      fmt.Sprintf("Reset %s to default state", sess.CurrentShape),
		"package_type": sess.CurrentShape,
		"dimensions":   sess.ActiveShape().Dimensions,
	})
}

// Clear handles POST /packaging/clear.
func (h *PackagingHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Clear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
