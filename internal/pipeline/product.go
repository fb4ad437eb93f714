// Package pipeline drives the product generation session through its
// phases: pending -> generating_images -> generating_model -> complete, with
// error as the absorbing state. Trigger calls return immediately with a
// pending status; the run itself executes as a tracked background task and
// reports through the persisted session and status projection.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fabrica3d/fabrica/internal/genimage"
	"github.com/fabrica3d/fabrica/internal/models"
	"github.com/fabrica3d/fabrica/internal/recon"
	"github.com/fabrica3d/fabrica/internal/state"
)

// Image count bounds for a single run.
const (
	MinImageCount = 1
	MaxImageCount = 6
)

// Orchestrator owns the product session state machine.
type Orchestrator struct {
	sessions      *state.ProductStore
	status        *state.StatusStore
	generator     genimage.Generator
	reconstructor recon.Reconstructor
	logger        *slog.Logger

	// startMu serializes the busy-guard's check-then-set within this
	// process. Across processes the guard stays soft: there is no
	// distributed lock, matching the single-session design.
	startMu sync.Mutex
	tasks   *taskRegistry
}

func NewOrchestrator(
	sessions *state.ProductStore,
	status *state.StatusStore,
	generator genimage.Generator,
	reconstructor recon.Reconstructor,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessions:      sessions,
		status:        status,
		generator:     generator,
		reconstructor: reconstructor,
		logger:        logger,
		tasks:         newTaskRegistry(),
	}
}

// StartCreate begins a create run. The iteration log, image set, and
// reconstruction output are reset; the original prompt is replaced.
func (o *Orchestrator) StartCreate(ctx context.Context, prompt string, imageCount int) (*models.StatusProjection, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", models.ErrValidation)
	}
	if imageCount < MinImageCount || imageCount > MaxImageCount {
		return nil, fmt.Errorf("%w: image_count must be between %d and %d", models.ErrValidation, MinImageCount, MaxImageCount)
	}

	o.startMu.Lock()
	defer o.startMu.Unlock()

	sess, err := o.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if sess.InProgress {
		return nil, models.ErrBusy
	}

	now := time.Now().UTC()
	sess.Prompt = prompt
	sess.LatestInstruction = prompt
	sess.Mode = models.ModeCreate
	sess.Phase = models.PhasePending
	sess.Message = "Preparing product generation"
	sess.InProgress = true
	sess.GenerationStartedAt = &now
	sess.ImageCount = imageCount
	sess.Images = []string{}
	sess.Reconstruction = nil
	sess.Iterations = []models.Iteration{}
	sess.LastError = ""
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	pending := models.StatusProjection{Phase: models.PhasePending, Message: sess.Message}
	o.publish(ctx, pending)

	o.launch(prompt, models.ModeCreate)
	return &pending, nil
}

// StartEdit begins an edit run against the existing base product. The
// iteration log is preserved; a new iteration is appended on success.
func (o *Orchestrator) StartEdit(ctx context.Context, instruction string) (*models.StatusProjection, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("%w: instruction is required", models.ErrValidation)
	}

	o.startMu.Lock()
	defer o.startMu.Unlock()

	sess, err := o.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if sess.InProgress {
		return nil, models.ErrBusy
	}
	if sess.Prompt == "" || len(sess.Images) == 0 {
		return nil, models.ErrNoBaseProduct
	}

	now := time.Now().UTC()
	sess.LatestInstruction = instruction
	sess.Mode = models.ModeEdit
	sess.Phase = models.PhasePending
	sess.Message = "Preparing edit request"
	sess.InProgress = true
	sess.GenerationStartedAt = &now
	sess.LastError = ""
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	pending := models.StatusProjection{Phase: models.PhasePending, Message: sess.Message}
	o.publish(ctx, pending)

	o.launch(instruction, models.ModeEdit)
	return &pending, nil
}

// launch runs the pipeline as a tracked background task. The run is
// deliberately detached from the request context: a client disconnect must
// not cancel it, and its result still lands in the store.
func (o *Orchestrator) launch(instruction, mode string) {
	done := o.tasks.add()
	go func() {
		defer done()
		o.run(context.Background(), instruction, mode)
	}()
}

func (o *Orchestrator) run(ctx context.Context, instruction, mode string) {
	started := time.Now()
	log := o.logger.With("mode", mode)
	log.Info("pipeline run starting")

	sess, err := o.sessions.Load(ctx)
	if err != nil {
		o.fail(ctx, err)
		return
	}

	sess.MarkProgress(models.PhaseGeneratingImages, "Generating concept images")
	if err := o.sessions.Save(ctx, sess); err != nil {
		o.fail(ctx, err)
		return
	}
	o.publish(ctx, models.StatusProjection{
		Phase:    models.PhaseGeneratingImages,
		Progress: 10,
		Message:  "Generating concept images",
	})

	var refs []string
	if mode == models.ModeEdit {
		refs = sess.Images
	}
	images, err := o.generator.Generate(ctx, genimage.Request{
		Prompt:          instruction,
		Workflow:        mode,
		Count:           sess.ImageCount,
		ReferenceImages: refs,
		BaseDescription: sess.Prompt,
	})
	if err != nil {
		o.fail(ctx, fmt.Errorf("generate images: %w", err))
		return
	}
	if len(images) == 0 {
		o.fail(ctx, fmt.Errorf("image generation returned no images"))
		return
	}

	sess.Images = images
	sess.MarkProgress(models.PhaseGeneratingModel, "Generating 3D model")
	if err := o.sessions.Save(ctx, sess); err != nil {
		o.fail(ctx, err)
		return
	}
	o.publish(ctx, models.StatusProjection{
		Phase:    models.PhaseGeneratingModel,
		Progress: 45,
		Message:  "Generating 3D model",
	})

	// Reconstruction progress hints are forwarded verbatim; ordering and
	// monotonicity are not enforced.
	artifacts, err := o.reconstructor.Reconstruct(ctx, images, func(phase string, progress int, message string) {
		o.publish(ctx, models.StatusProjection{Phase: phase, Progress: progress, Message: message})
	})
	if err != nil {
		o.fail(ctx, fmt.Errorf("reconstruct 3d: %w", err))
		return
	}

	// Final merge: re-read the latest session so the iteration append and
	// artifact install never clobber metadata written during the run.
	sess, err = o.sessions.Load(ctx)
	if err != nil {
		o.fail(ctx, err)
		return
	}
	duration := time.Since(started).Seconds()
	sess.Images = images
	sess.Reconstruction = artifacts
	sess.Iterations = append(sess.Iterations, models.Iteration{
		ID:              uuid.New().String(),
		Kind:            mode,
		Instruction:     instruction,
		Images:          images,
		Reconstruction:  artifacts,
		CreatedAt:       time.Now().UTC(),
		DurationSeconds: duration,
	})
	sess.MarkComplete("3D asset generated")
	if err := o.sessions.Save(ctx, sess); err != nil {
		o.fail(ctx, err)
		return
	}

	o.publish(ctx, models.StatusProjection{
		Phase:        models.PhaseComplete,
		Progress:     100,
		Message:      "3D asset generated",
		ModelFile:    artifacts.MeshFile,
		PreviewImage: previewImage(sess),
	})
	log.Info("pipeline run complete", "duration_seconds", duration, "images", len(images))
}

// fail transitions the session into the error state. The underlying message
// is surfaced verbatim in both records; the run is not retried.
func (o *Orchestrator) fail(ctx context.Context, runErr error) {
	o.logger.Error("pipeline run failed", "error", runErr)

	sess, err := o.sessions.Load(ctx)
	if err != nil {
		o.logger.Error("load session for error handling", "error", err)
		return
	}
	sess.MarkError(runErr.Error())
	if err := o.sessions.Save(ctx, sess); err != nil {
		o.logger.Error("save errored session", "error", err)
	}

	o.publish(ctx, models.StatusProjection{
		Phase:   models.PhaseError,
		Message: "Pipeline failed",
		Error:   runErr.Error(),
	})
}

// RecoveryReport is the outcome of a Recover call.
type RecoveryReport struct {
	Recovered bool   `json:"recovered"`
	Message   string `json:"message"`
}

// Recover forces an orphaned session back to idle. A session is orphaned
// when in_progress is persisted but this orchestrator has no live run,
// which happens after a process restart mid-run. When a live run exists the
// call is a no-op.
func (o *Orchestrator) Recover(ctx context.Context) (*RecoveryReport, error) {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	sess, err := o.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.InProgress {
		return &RecoveryReport{Recovered: false, Message: "not recovered: no run in progress"}, nil
	}
	if o.tasks.active() > 0 {
		return &RecoveryReport{Recovered: false, Message: "not recovered: a run is still active"}, nil
	}

	sess.Mode = models.ModeIdle
	sess.Phase = models.PhaseIdle
	sess.Message = "Recovered from interrupted generation"
	sess.InProgress = false
	sess.GenerationStartedAt = nil
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	o.publish(ctx, models.StatusProjection{
		Phase:   models.PhaseIdle,
		Message: "Recovered from interrupted generation",
	})

	o.logger.Info("recovered orphaned session")
	return &RecoveryReport{Recovered: true, Message: "session recovered"}, nil
}

// Rewind restores the session to iteration index and truncates the log to
// that point. Artifact files behind the discarded pointers are not deleted.
func (o *Orchestrator) Rewind(ctx context.Context, index int) (*models.ProductSession, error) {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	sess, err := o.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if sess.InProgress {
		return nil, models.ErrBusy
	}
	if index < 0 || index >= len(sess.Iterations) {
		return nil, models.ErrRewindOutOfRange
	}

	target := sess.Iterations[index]
	sess.Iterations = sess.Iterations[:index+1]
	sess.Images = append([]string{}, target.Images...)
	sess.Reconstruction = target.Reconstruction
	sess.LatestInstruction = target.Instruction
	if target.Kind == models.ModeCreate {
		sess.Prompt = target.Instruction
	}
	sess.Mode = models.ModeIdle
	sess.Phase = models.PhaseIdle
	sess.Message = fmt.Sprintf("Rewound to iteration %d", index)
	sess.InProgress = false
	sess.GenerationStartedAt = nil
	sess.LastError = ""
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	restored := models.StatusProjection{
		Phase:        models.PhaseIdle,
		Message:      sess.Message,
		PreviewImage: previewImage(sess),
	}
	if sess.Reconstruction != nil {
		restored.ModelFile = sess.Reconstruction.MeshFile
	}
	o.publish(ctx, restored)

	o.logger.Info("session rewound", "iteration", index, "kind", target.Kind)
	return sess, nil
}

// Session returns the full persisted session record.
func (o *Orchestrator) Session(ctx context.Context) (*models.ProductSession, error) {
	return o.sessions.Load(ctx)
}

// Status returns the lightweight polled projection.
func (o *Orchestrator) Status(ctx context.Context) (*models.StatusProjection, error) {
	return o.status.Load(ctx)
}

// Clear discards the session and publishes an idle status.
func (o *Orchestrator) Clear(ctx context.Context) (*models.ProductSession, error) {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	sess, err := o.sessions.Clear(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.status.Save(ctx, models.NewStatusProjection()); err != nil {
		return nil, err
	}
	return sess, nil
}

// publish merges a milestone into the stored status projection. Status
// writes are best-effort: a failed write is logged, never propagated, since
// the session record remains the source of truth.
func (o *Orchestrator) publish(ctx context.Context, update models.StatusProjection) {
	proj, err := o.status.Load(ctx)
	if err != nil {
		o.logger.Error("load status projection", "error", err)
		return
	}
	proj.Merge(update)
	if err := o.status.Save(ctx, proj); err != nil {
		o.logger.Error("save status projection", "error", err)
	}
}

// previewImage picks the best preview for the status projection: the first
// background-removed render when available, else the first source image.
func previewImage(sess *models.ProductSession) string {
	if sess.Reconstruction != nil && len(sess.Reconstruction.BackgroundRemovedImages) > 0 {
		return sess.Reconstruction.BackgroundRemovedImages[0]
	}
	if len(sess.Images) > 0 {
		return sess.Images[0]
	}
	return ""
}
