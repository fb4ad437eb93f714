package api

import (
	"context"
	"net/http"

	"github.com/fabrica3d/fabrica/internal/kv"
)

// HealthChecker reports whether an external capability is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type serviceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status         string       `json:"status"`
	Store          serviceCheck `json:"store"`
	ImageAPI       serviceCheck `json:"image_api"`
	Reconstruction serviceCheck `json:"reconstruction"`
}

type HealthHandler struct {
	store kv.Store
	image HealthChecker
	recon HealthChecker
}

func NewHealthHandler(store kv.Store, image, recon HealthChecker) *HealthHandler {
	return &HealthHandler{store: store, image: image, recon: recon}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	check := func(err error) serviceCheck {
		if err != nil {
			resp.Status = "degraded"
			return serviceCheck{Status: "error", Message: err.Error()}
		}
		return serviceCheck{Status: "ok"}
	}

	resp.Store = check(h.store.Ping(r.Context()))
	if h.image != nil {
		resp.ImageAPI = check(h.image.HealthCheck(r.Context()))
	} else {
		resp.ImageAPI = serviceCheck{Status: "skipped"}
	}
	if h.recon != nil {
		resp.Reconstruction = check(h.recon.HealthCheck(r.Context()))
	} else {
		resp.Reconstruction = serviceCheck{Status: "skipped"}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
