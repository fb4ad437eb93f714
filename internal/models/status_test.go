package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeStickyArtifactPointers(t *testing.T) {
	proj := NewStatusProjection()

	proj.Merge(StatusProjection{
		Phase:        PhaseComplete,
		Progress:     100,
		ModelFile:    "mesh.glb",
		PreviewImage: "preview.png",
	})
	assert.Equal(t, "mesh.glb", proj.ModelFile)
	assert.Equal(t, "preview.png", proj.PreviewImage)

	// A milestone without artifact pointers must not clear them.
	proj.Merge(StatusProjection{
		Phase:    PhaseGeneratingImages,
		Progress: 10,
		Message:  "Generating concept images",
	})
	assert.Equal(t, PhaseGeneratingImages, proj.Phase)
	assert.Equal(t, 10, proj.Progress)
	assert.Equal(t, "mesh.glb", proj.ModelFile)
	assert.Equal(t, "preview.png", proj.PreviewImage)

	// New pointers replace the old ones.
	proj.Merge(StatusProjection{
		Phase:     PhaseComplete,
		Progress:  100,
		ModelFile: "mesh-v2.glb",
	})
	assert.Equal(t, "mesh-v2.glb", proj.ModelFile)
	assert.Equal(t, "preview.png", proj.PreviewImage)
}

func TestMergeReplacesTransientFields(t *testing.T) {
	proj := NewStatusProjection()
	proj.Merge(StatusProjection{Phase: PhaseError, Message: "Pipeline failed", Error: "boom"})
	assert.Equal(t, "boom", proj.Error)

	// The next milestone clears the error and message outright.
	proj.Merge(StatusProjection{Phase: PhasePending})
	assert.Empty(t, proj.Error)
	assert.Empty(t, proj.Message)
	assert.Equal(t, PhasePending, proj.Phase)
}

func TestMarkTransitions(t *testing.T) {
	sess := NewProductSession()
	now := sess.CreatedAt
	sess.InProgress = true
	sess.GenerationStartedAt = &now

	sess.MarkProgress(PhaseGeneratingModel, "Generating 3D model")
	assert.Equal(t, PhaseGeneratingModel, sess.Phase)
	assert.True(t, sess.InProgress)

	sess.MarkComplete("3D asset generated")
	assert.Equal(t, PhaseComplete, sess.Phase)
	assert.False(t, sess.InProgress)
	assert.Nil(t, sess.GenerationStartedAt)

	sess.MarkError("upstream timeout")
	assert.Equal(t, PhaseError, sess.Phase)
	assert.Equal(t, "upstream timeout", sess.LastError)
	assert.False(t, sess.InProgress)
}
