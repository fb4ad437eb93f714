package models

import "time"

// Shape identifiers for the two packaging variants.
const (
	ShapeBox      = "box"
	ShapeCylinder = "cylinder"
)

// Dimensions are outer package dimensions in millimeters.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

// Valid reports whether every dimension is positive.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0 && d.Depth > 0
}

// DefaultDimensions returns the shape-specific factory dimensions.
func DefaultDimensions(shape string) Dimensions {
	if shape == ShapeCylinder {
		return Dimensions{Width: 80, Height: 150, Depth: 80}
	}
	return Dimensions{Width: 100, Height: 150, Depth: 100}
}

// PanelDimensions are the flat panel's width and height in millimeters.
type PanelDimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PanelTexture is a generated texture for one panel of the active shape.
type PanelTexture struct {
	PanelID     string          `json:"panel_id"`
	TextureURL  string          `json:"texture_url"`
	Prompt      string          `json:"prompt"`
	GeneratedAt time.Time       `json:"generated_at"`
	Dimensions  PanelDimensions `json:"dimensions"`
}

// ShapeState holds everything one shape variant owns. Switching the active
// shape must never mutate the inactive variant's state.
type ShapeState struct {
	Dimensions    Dimensions              `json:"dimensions"`
	PanelTextures map[string]PanelTexture `json:"panel_textures"`
}

func newShapeState(shape string) ShapeState {
	return ShapeState{
		Dimensions:    DefaultDimensions(shape),
		PanelTextures: map[string]PanelTexture{},
	}
}

// heal resets invalid or missing fields to shape defaults. Stored sessions
// from older writers may carry zero or negative dimensions; they are never
// surfaced as-is.
func (s *ShapeState) heal(shape string) {
	if !s.Dimensions.Valid() {
		s.Dimensions = DefaultDimensions(shape)
	}
	if s.PanelTextures == nil {
		s.PanelTextures = map[string]PanelTexture{}
	}
}

// PackagingSession is the single-session source of truth for packaging
// design. Box and cylinder each own their dimensions and textures;
// CurrentShape selects which one the convenience accessors target.
type PackagingSession struct {
	CurrentShape string     `json:"current_shape"`
	Box          ShapeState `json:"box"`
	Cylinder     ShapeState `json:"cylinder"`

	InProgress       bool      `json:"in_progress"`
	GeneratingPanel  string    `json:"generating_panel,omitempty"`
	GeneratingPanels []string  `json:"generating_panels"`
	BulkInProgress   bool      `json:"bulk_in_progress"`
	LastError        string    `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewPackagingSession returns a clean default session with the box active.
func NewPackagingSession() *PackagingSession {
	now := time.Now().UTC()
	return &PackagingSession{
		CurrentShape:     ShapeBox,
		Box:              newShapeState(ShapeBox),
		Cylinder:         newShapeState(ShapeCylinder),
		GeneratingPanels: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Heal self-repairs a loaded session: unknown shape selectors fall back to
// box, and each variant's dimensions are reset to defaults when invalid.
func (s *PackagingSession) Heal() {
	if s.CurrentShape != ShapeBox && s.CurrentShape != ShapeCylinder {
		s.CurrentShape = ShapeBox
	}
	s.Box.heal(ShapeBox)
	s.Cylinder.heal(ShapeCylinder)
	if s.GeneratingPanels == nil {
		s.GeneratingPanels = []string{}
	}
}

// ActiveShape returns the shape state selected by CurrentShape.
func (s *PackagingSession) ActiveShape() *ShapeState {
	if s.CurrentShape == ShapeCylinder {
		return &s.Cylinder
	}
	return &s.Box
}

// Shape returns the named shape state, or nil for an unknown name.
func (s *PackagingSession) Shape(shape string) *ShapeState {
	switch shape {
	case ShapeBox:
		return &s.Box
	case ShapeCylinder:
		return &s.Cylinder
	}
	return nil
}

// PanelTexture looks up a texture on the active shape.
func (s *PackagingSession) PanelTexture(panelID string) (PanelTexture, bool) {
	t, ok := s.ActiveShape().PanelTextures[panelID]
	return t, ok
}

// TextureFor looks up a texture on the named shape.
func (s *PackagingSession) TextureFor(shape, panelID string) (PanelTexture, bool) {
	st := s.Shape(shape)
	if st == nil {
		return PanelTexture{}, false
	}
	t, ok := st.PanelTextures[panelID]
	return t, ok
}

// SetPanelTexture installs a texture on the active shape.
func (s *PackagingSession) SetPanelTexture(t PanelTexture) {
	s.ActiveShape().PanelTextures[t.PanelID] = t
	s.UpdatedAt = time.Now().UTC()
}

// RemoveGeneratingPanel drops one panel id from the bulk progress markers.
func (s *PackagingSession) RemoveGeneratingPanel(panelID string) {
	out := s.GeneratingPanels[:0]
	for _, id := range s.GeneratingPanels {
		if id != panelID {
			out = append(out, id)
		}
	}
	s.GeneratingPanels = out
	s.UpdatedAt = time.Now().UTC()
}

// MarkError fails the current run and clears every run-control marker.
func (s *PackagingSession) MarkError(errMsg string) {
	s.LastError = errMsg
	s.InProgress = false
	s.GeneratingPanel = ""
	s.BulkInProgress = false
	s.GeneratingPanels = []string{}
	s.UpdatedAt = time.Now().UTC()
}

// ClearRunState resets the run-control markers after a successful run.
func (s *PackagingSession) ClearRunState() {
	s.InProgress = false
	s.GeneratingPanel = ""
	s.BulkInProgress = false
	s.GeneratingPanels = []string{}
	s.UpdatedAt = time.Now().UTC()
}

// Busy reports whether any single or bulk run currently owns the session.
func (s *PackagingSession) Busy() bool {
	return s.InProgress || s.BulkInProgress
}
