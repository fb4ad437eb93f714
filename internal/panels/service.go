// Package panels runs packaging texture generation: single-panel runs and
// the two-phase bulk flow (master mockup, then a parallel per-panel fan-out
// committed with one atomic merge).
package panels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fabrica3d/fabrica/internal/genimage"
	"github.com/fabrica3d/fabrica/internal/models"
	"github.com/fabrica3d/fabrica/internal/state"
)

// PanelRequest starts a single-panel texture run.
type PanelRequest struct {
	PanelID         string
	Prompt          string
	Shape           string
	PanelDims       models.PanelDimensions
	PackageDims     models.Dimensions
	ReferenceMockup string
}

// BulkRequest starts a texture run over a set of panels.
type BulkRequest struct {
	Prompt          string
	Shape           string
	PackageDims     models.Dimensions
	PanelIDs        []string
	PanelDims       map[string]models.PanelDimensions
	ReferenceMockup string
}

// RunStatus is the packaging flavor of the polled status payload.
type RunStatus struct {
	InProgress       bool      `json:"in_progress"`
	GeneratingPanel  string    `json:"generating_panel,omitempty"`
	GeneratingPanels []string  `json:"generating_panels"`
	LastError        string    `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Service owns the packaging session state machine.
type Service struct {
	sessions  *state.PackagingStore
	generator genimage.Generator
	logger    *slog.Logger

	// startMu serializes the busy-guard's check-then-set within this
	// process; the guard stays soft across processes.
	startMu sync.Mutex
	// running counts live background tasks so tests and shutdown hooks can
	// observe quiescence.
	running sync.WaitGroup
}

func NewService(sessions *state.PackagingStore, generator genimage.Generator, logger *slog.Logger) *Service {
	return &Service{
		sessions:  sessions,
		generator: generator,
		logger:    logger,
	}
}

func validateShape(shape string) error {
	if shape != models.ShapeBox && shape != models.ShapeCylinder {
		return fmt.Errorf("%w: unknown package type %q", models.ErrValidation, shape)
	}
	return nil
}

// GeneratePanel starts a texture run for one panel and returns immediately.
// The outcome lands in the session record.
func (s *Service) GeneratePanel(ctx context.Context, req PanelRequest) error {
	if strings.TrimSpace(req.PanelID) == "" {
		return fmt.Errorf("%w: panel_id is required", models.ErrValidation)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", models.ErrValidation)
	}
	if err := validateShape(req.Shape); err != nil {
		return err
	}
	if req.PanelDims.Width <= 0 || req.PanelDims.Height <= 0 {
		return models.ErrInvalidDimensions
	}
	if !req.PackageDims.Valid() {
		return models.ErrInvalidDimensions
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return err
	}
	if sess.Busy() {
		return models.ErrBusy
	}

	// Existing texture means this is an iteration on a prior design.
	existing, hasExisting := sess.TextureFor(req.Shape, req.PanelID)
	workflow := genimage.WorkflowCreate
	oldTexture := ""
	if hasExisting {
		workflow = genimage.WorkflowEdit
		oldTexture = existing.TextureURL
	}

	sess.CurrentShape = req.Shape
	sess.ActiveShape().Dimensions = req.PackageDims
	sess.InProgress = true
	sess.GeneratingPanel = req.PanelID
	sess.LastError = ""
	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}

	s.logger.Info("panel generation starting", "panel", req.PanelID, "workflow", workflow)

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.runSingle(context.Background(), req, workflow, oldTexture)
	}()
	return nil
}

func (s *Service) runSingle(ctx context.Context, req PanelRequest, workflow, oldTexture string) {
	var refs []string
	if workflow == genimage.WorkflowEdit && oldTexture != "" {
		refs = []string{oldTexture}
	} else if req.ReferenceMockup != "" {
		refs = []string{req.ReferenceMockup}
	}

	images, err := s.generator.Generate(ctx, genimage.Request{
		Prompt:          panelPrompt(req.PanelID, req.Shape, req.Prompt, req.PanelDims, len(refs) > 0),
		Workflow:        workflow,
		Count:           1,
		ReferenceImages: refs,
		IsTexture:       true,
	})

	// Re-read the latest session so the commit never clobbers metadata
	// changed while the model was running.
	sess, loadErr := s.sessions.Load(ctx)
	if loadErr != nil {
		s.logger.Error("load session after panel generation", "error", loadErr)
		return
	}

	switch {
	case err != nil:
		sess.MarkError(fmt.Sprintf("panel %s: %v", req.PanelID, err))
		s.logger.Error("panel generation failed", "panel", req.PanelID, "error", err)
	case len(images) == 0:
		sess.MarkError(fmt.Sprintf("panel %s: texture generation returned no image", req.PanelID))
		s.logger.Error("panel generation returned no image", "panel", req.PanelID)
	default:
		sess.SetPanelTexture(models.PanelTexture{
			PanelID:     req.PanelID,
			TextureURL:  images[0],
			Prompt:      req.Prompt,
			GeneratedAt: time.Now().UTC(),
			Dimensions:  req.PanelDims,
		})
		sess.ClearRunState()
		s.logger.Info("panel generation complete", "panel", req.PanelID)
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("save session after panel generation", "error", err)
	}
}

// GenerateAll starts the bulk flow for the requested panel set and returns
// immediately. Per-panel failures are isolated; the final merge installs
// every success and keeps prior textures for the rest.
func (s *Service) GenerateAll(ctx context.Context, req BulkRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", models.ErrValidation)
	}
	if len(req.PanelIDs) == 0 {
		return fmt.Errorf("%w: panel_ids is required", models.ErrValidation)
	}
	if err := validateShape(req.Shape); err != nil {
		return err
	}
	if !req.PackageDims.Valid() {
		return models.ErrInvalidDimensions
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return err
	}
	if sess.Busy() {
		return models.ErrBusy
	}

	// Edit flow when any requested panel already has a texture; its
	// texture seeds the master mockup.
	workflow := genimage.WorkflowCreate
	seedTexture := ""
	for _, id := range req.PanelIDs {
		if t, ok := sess.TextureFor(req.Shape, id); ok {
			workflow = genimage.WorkflowEdit
			seedTexture = t.TextureURL
			break
		}
	}

	// Prior textures stay in place during the run; the new batch replaces
	// them only at the final atomic merge.
	sess.CurrentShape = req.Shape
	sess.ActiveShape().Dimensions = req.PackageDims
	sess.BulkInProgress = true
	sess.GeneratingPanels = append([]string{}, req.PanelIDs...)
	sess.LastError = ""
	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}

	s.logger.Info("bulk panel generation starting", "panels", len(req.PanelIDs), "workflow", workflow)

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.runBulk(context.Background(), req, workflow, seedTexture)
	}()
	return nil
}

func (s *Service) runBulk(ctx context.Context, req BulkRequest, workflow, seedTexture string) {
	// Phase 1: one master mockup keeps every panel stylistically
	// consistent without ordering dependencies between panels. Failure is
	// non-fatal: fall back to the caller's reference, else proceed bare.
	master := s.generateMasterMockup(ctx, req, workflow, seedTexture)

	// Phase 2: parallel fan-out, one slot per panel so no shared state is
	// touched before the join barrier.
	type panelResult struct {
		texture string
		err     error
	}
	results := make([]panelResult, len(req.PanelIDs))

	var wg sync.WaitGroup
	for i, panelID := range req.PanelIDs {
		wg.Add(1)
		go func(i int, panelID string) {
			defer wg.Done()

			var refs []string
			if master != "" {
				refs = []string{master}
			}
			images, err := s.generator.Generate(ctx, genimage.Request{
				Prompt:          panelPrompt(panelID, req.Shape, req.Prompt, req.PanelDims[panelID], master != ""),
				Workflow:        workflow,
				Count:           1,
				ReferenceImages: refs,
				IsTexture:       true,
			})
			switch {
			case err != nil:
				results[i] = panelResult{err: err}
				s.logger.Error("bulk panel failed", "panel", panelID, "error", err)
				return
			case len(images) == 0:
				results[i] = panelResult{err: fmt.Errorf("no image returned")}
				s.logger.Error("bulk panel returned no image", "panel", panelID)
				return
			}
			results[i] = panelResult{texture: images[0]}

			// Progress marker only; the texture map itself is not touched
			// until the atomic merge. Re-read so sibling updates survive.
			if sess, err := s.sessions.Load(ctx); err == nil {
				sess.RemoveGeneratingPanel(panelID)
				if err := s.sessions.Save(ctx, sess); err != nil {
					s.logger.Error("save progress marker", "panel", panelID, "error", err)
				}
			}
		}(i, panelID)
	}
	wg.Wait()

	generated := map[string]models.PanelTexture{}
	var failed []string
	now := time.Now().UTC()
	for i, panelID := range req.PanelIDs {
		if results[i].err != nil || results[i].texture == "" {
			failed = append(failed, panelID)
			continue
		}
		generated[panelID] = models.PanelTexture{
			PanelID:     panelID,
			TextureURL:  results[i].texture,
			Prompt:      req.Prompt,
			GeneratedAt: now,
			Dimensions:  req.PanelDims[panelID],
		}
	}

	// Atomic commit: one fresh re-read, one merge, one save. Successes
	// overwrite their keys; failed and untouched panels keep their prior
	// textures.
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		s.logger.Error("load session for bulk commit", "error", err)
		return
	}
	textures := sess.Shape(req.Shape).PanelTextures
	for id, texture := range generated {
		textures[id] = texture
	}
	sess.ClearRunState()
	if len(failed) > 0 {
		sess.LastError = fmt.Sprintf("Generated %d/%d textures. Failed: %s (old textures retained)",
			len(generated), len(req.PanelIDs), strings.Join(failed, ", "))
		s.logger.Error("bulk generation completed with errors", "failed", failed)
	} else {
		sess.LastError = ""
		s.logger.Info("bulk generation complete", "panels", len(req.PanelIDs))
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("save session after bulk commit", "error", err)
	}
}

func (s *Service) generateMasterMockup(ctx context.Context, req BulkRequest, workflow, seedTexture string) string {
	var prompt string
	var refs []string
	if workflow == genimage.WorkflowEdit {
		prompt = mockupEditPrompt(req.Prompt, req.PackageDims)
		if seedTexture != "" {
			refs = []string{seedTexture}
		}
	} else {
		prompt = mockupCreatePrompt(req.Shape, req.Prompt, req.PackageDims)
		if req.ReferenceMockup != "" {
			refs = []string{req.ReferenceMockup}
		}
	}

	images, err := s.generator.Generate(ctx, genimage.Request{
		Prompt:          prompt,
		Workflow:        workflow,
		Count:           1,
		ReferenceImages: refs,
	})
	if err != nil || len(images) == 0 {
		s.logger.Warn("master mockup generation failed, falling back", "error", err)
		return req.ReferenceMockup
	}
	return images[0]
}

// Texture looks up a panel's texture, distinguishing "still generating"
// from "never requested".
func (s *Service) Texture(ctx context.Context, panelID string) (models.PanelTexture, error) {
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return models.PanelTexture{}, err
	}
	if t, ok := sess.PanelTexture(panelID); ok {
		return t, nil
	}
	if sess.InProgress && sess.GeneratingPanel == panelID {
		return models.PanelTexture{}, models.ErrTextureInProgress
	}
	for _, id := range sess.GeneratingPanels {
		if sess.BulkInProgress && id == panelID {
			return models.PanelTexture{}, models.ErrTextureInProgress
		}
	}
	return models.PanelTexture{}, models.ErrTextureNotFound
}

// DeleteTexture removes a panel's texture from the active shape.
func (s *Service) DeleteTexture(ctx context.Context, panelID string) error {
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return err
	}
	delete(sess.ActiveShape().PanelTextures, panelID)
	return s.sessions.Save(ctx, sess)
}

// UpdateDimensions switches the active shape and stores its dimensions. The
// inactive shape is never touched.
func (s *Service) UpdateDimensions(ctx context.Context, shape string, dims models.Dimensions) (*models.PackagingSession, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if !dims.Valid() {
		return nil, models.ErrInvalidDimensions
	}

	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	sess.CurrentShape = shape
	sess.Shape(shape).Dimensions = dims
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ResetShape restores the active shape to factory dimensions and drops its
// textures. The other shape keeps its state.
func (s *Service) ResetShape(ctx context.Context) (*models.PackagingSession, error) {
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	shape := sess.ActiveShape()
	shape.Dimensions = models.DefaultDimensions(sess.CurrentShape)
	shape.PanelTextures = map[string]models.PanelTexture{}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Clear resets the whole packaging session to defaults.
func (s *Service) Clear(ctx context.Context) (*models.PackagingSession, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	return s.sessions.Clear(ctx)
}

// Session returns the full persisted session record.
func (s *Service) Session(ctx context.Context) (*models.PackagingSession, error) {
	return s.sessions.Load(ctx)
}

// Status returns the poll-friendly run status.
func (s *Service) Status(ctx context.Context) (*RunStatus, error) {
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &RunStatus{
		InProgress:       sess.Busy(),
		GeneratingPanel:  sess.GeneratingPanel,
		GeneratingPanels: sess.GeneratingPanels,
		LastError:        sess.LastError,
		UpdatedAt:        sess.UpdatedAt,
	}, nil
}

// WaitIdle blocks until every background task has finished. Used by tests
// and graceful shutdown.
func (s *Service) WaitIdle() {
	s.running.Wait()
}
