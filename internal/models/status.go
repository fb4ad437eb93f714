package models

import "time"

// StatusProjection is the lightweight payload the frontend polls frequently.
// It mirrors the most recently reported pipeline milestone and is persisted
// independently of the full session so polling stays cheap. Writes are
// last-write-wins; concurrent progress callbacks are not ordered.
type StatusProjection struct {
	Phase        string    `json:"phase"`
	Progress     int       `json:"progress"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	ModelFile    string    `json:"model_file,omitempty"`
	PreviewImage string    `json:"preview_image,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewStatusProjection returns the idle default.
func NewStatusProjection() *StatusProjection {
	return &StatusProjection{Phase: PhaseIdle, UpdatedAt: time.Now().UTC()}
}

// Merge applies an incoming milestone onto the stored projection. Artifact
// pointers are sticky: an update without a model file or preview keeps the
// previous one so the UI never loses its latest asset reference.
func (p *StatusProjection) Merge(update StatusProjection) {
	p.Phase = update.Phase
	p.Progress = update.Progress
	p.Message = update.Message
	p.Error = update.Error
	if update.ModelFile != "" {
		p.ModelFile = update.ModelFile
	}
	if update.PreviewImage != "" {
		p.PreviewImage = update.PreviewImage
	}
	p.UpdatedAt = time.Now().UTC()
}
