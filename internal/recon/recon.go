// Package recon talks to the 3D reconstruction API that turns product images
// into mesh artifacts.
package recon

import (
	"context"

	"github.com/fabrica3d/fabrica/internal/models"
)

// ProgressFunc receives reconstruction progress hints: a phase label, a
// percentage, and a human-readable message. Invocations are not guaranteed
// to be ordered or monotonic; callers forward them verbatim.
type ProgressFunc func(phase string, progress int, message string)

// Reconstructor is the 3D-reconstruction capability the product pipeline
// depends on.
type Reconstructor interface {
	Reconstruct(ctx context.Context, images []string, progress ProgressFunc) (*models.ReconstructionArtifacts, error)
}
