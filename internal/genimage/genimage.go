// Package genimage talks to the generative image API that produces product
// views and panel textures.
package genimage

import "context"

// Workflow selects the model policy: create uses the pro model, edit the
// flash model.
const (
	WorkflowCreate = "create"
	WorkflowEdit   = "edit"
)

// Request describes one generation call.
type Request struct {
	// Prompt is the creation or edit instruction.
	Prompt string
	// Workflow is "create" or "edit".
	Workflow string
	// Count is the number of views requested (>= 1).
	Count int
	// ReferenceImages bias the output toward an existing design. Used for
	// edits and for stylistic consistency across a bulk batch.
	ReferenceImages []string
	// BaseDescription is the original product prompt, carried along on
	// edits so the model keeps the base concept.
	BaseDescription string
	// IsTexture requests a flat orthographic panel texture instead of a
	// product photograph.
	IsTexture bool
}

// Generator is the image-generation capability the pipelines depend on. An
// implementation may return fewer images than requested; returning zero
// images is treated as a failure by every caller.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}
