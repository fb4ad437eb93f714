// Package models defines the persisted session records for the product and
// packaging generation flows plus the lightweight status payload the
// frontend polls.
package models

import "time"

// Pipeline modes for a product session.
const (
	ModeIdle   = "idle"
	ModeCreate = "create"
	ModeEdit   = "edit"
)

// Phase labels written to the session and the status projection. Phase is a
// free-form UI token, distinct from mode.
const (
	PhaseIdle             = "idle"
	PhasePending          = "pending"
	PhaseGeneratingImages = "generating_images"
	PhaseGeneratingModel  = "generating_model"
	PhaseComplete         = "complete"
	PhaseError            = "error"
)

// ReconstructionArtifacts is the latest 3D asset bundle for a session.
type ReconstructionArtifacts struct {
	MeshFile               string   `json:"mesh_file,omitempty"`
	ColorVideo             string   `json:"color_video,omitempty"`
	PointCloud             string   `json:"point_cloud,omitempty"`
	NormalVideo            string   `json:"normal_video,omitempty"`
	CombinedVideo          string   `json:"combined_video,omitempty"`
	BackgroundRemovedImages []string `json:"background_removed_images,omitempty"`
}

// Iteration is the historical record appended after each successful
// create/edit pass. The iterations slice is the undo log: append-only
// except for an explicit rewind.
type Iteration struct {
	ID              string                   `json:"id"`
	Kind            string                   `json:"kind"` // create or edit
	Instruction     string                   `json:"instruction"`
	Images          []string                 `json:"images"`
	Reconstruction  *ReconstructionArtifacts `json:"reconstruction,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	Note            string                   `json:"note,omitempty"`
	DurationSeconds float64                  `json:"duration_seconds,omitempty"`
}

// ProductSession is the single-session source of truth for product
// generation. One record per deployment; every mutation goes through
// load-mutate-save against the kv store.
type ProductSession struct {
	Prompt              string                   `json:"prompt,omitempty"`
	LatestInstruction   string                   `json:"latest_instruction,omitempty"`
	Mode                string                   `json:"mode"`
	Phase               string                   `json:"phase"`
	Message             string                   `json:"message,omitempty"`
	InProgress          bool                     `json:"in_progress"`
	GenerationStartedAt *time.Time               `json:"generation_started_at,omitempty"`
	ImageCount          int                      `json:"image_count"`
	Images              []string                 `json:"images"`
	Reconstruction      *ReconstructionArtifacts `json:"reconstruction,omitempty"`
	Iterations          []Iteration              `json:"iterations"`
	LastError           string                   `json:"last_error,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
}

// NewProductSession returns a clean idle session.
func NewProductSession() *ProductSession {
	now := time.Now().UTC()
	return &ProductSession{
		Mode:       ModeIdle,
		Phase:      PhaseIdle,
		ImageCount: 3,
		Images:     []string{},
		Iterations: []Iteration{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkError flips the session into the error absorbing state.
func (s *ProductSession) MarkError(errMsg string) {
	s.Phase = PhaseError
	s.Message = errMsg
	s.LastError = errMsg
	s.InProgress = false
	s.UpdatedAt = time.Now().UTC()
}

// MarkComplete ends the run cleanly and clears the elapsed-time anchor.
func (s *ProductSession) MarkComplete(message string) {
	s.Phase = PhaseComplete
	s.Message = message
	s.InProgress = false
	s.GenerationStartedAt = nil
	s.UpdatedAt = time.Now().UTC()
}

// MarkProgress records an intermediate phase change.
func (s *ProductSession) MarkProgress(phase, message string) {
	s.Phase = phase
	if message != "" {
		s.Message = message
	}
	s.UpdatedAt = time.Now().UTC()
}
