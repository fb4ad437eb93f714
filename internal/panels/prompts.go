package panels

import (
	"fmt"
	"strings"

	"github.com/fabrica3d/fabrica/internal/models"
)

// panelContext describes where a panel sits on the package, so the model
// understands what it is texturing.
func panelContext(panelID, shape string) string {
	var contexts map[string]string
	if shape == models.ShapeCylinder {
		contexts = map[string]string{
			"body":   "cylindrical body wrap (curved surface)",
			"top":    "top circular cap",
			"bottom": "bottom circular base",
		}
	} else {
		contexts = map[string]string{
			"front":  "front face (primary visible panel)",
			"back":   "back face (opposite side)",
			"left":   "left side panel",
			"right":  "right side panel",
			"top":    "top face (lid/opening area)",
			"bottom": "bottom face (base)",
		}
	}
	if ctx, ok := contexts[panelID]; ok {
		return ctx
	}
	return panelID
}

// panelPrompt builds the texture prompt for one panel. With a reference
// image present the instruction leans on it for stylistic consistency.
func panelPrompt(panelID, shape, userPrompt string, panelDims models.PanelDimensions, hasReference bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a flat print-ready texture for the %s of a %s package.\n\n", panelContext(panelID, shape), shape)
	fmt.Fprintf(&b, "DESIGN BRIEF:\n%s\n\n", userPrompt)
	fmt.Fprintf(&b, "PANEL SIZE: %.0fmm x %.0fmm\n", panelDims.Width, panelDims.Height)
	if hasReference {
		b.WriteString("\nMatch the style, palette, and branding of the reference image exactly; adapt the layout to this panel.")
	}
	b.WriteString("\nOutput a flat orthographic texture filling the full frame, no perspective, no mockup scene.")
	return b.String()
}

// mockupCreatePrompt is the Phase-1 brief for a brand new package design.
func mockupCreatePrompt(shape, userPrompt string, dims models.Dimensions) string {
	return fmt.Sprintf(`Generate a realistic 3D product photograph of a %s package.

DESIGN BRIEF:
%s

SPECIFICATIONS:
- Package type: %s
- Dimensions: %.0fmm x %.0fmm x %.0fmm

OUTPUT REQUIREMENTS:
- Show from a 3/4 angle view with multiple visible faces
- Display the complete design concept
- Professional product photography style with good lighting

Generate a complete 3D mockup.`, shape, userPrompt, shape, dims.Width, dims.Height, dims.Depth)
}

// mockupEditPrompt is the Phase-1 brief when modifying an existing design.
func mockupEditPrompt(userPrompt string, dims models.Dimensions) string {
	return fmt.Sprintf(`Modify the package design shown in the reference image.

MODIFICATIONS REQUESTED:
%s

OUTPUT REQUIREMENTS:
- Generate a 3D product photograph showing the modified design
- Show from a 3/4 angle view with multiple visible faces
- Apply the requested changes while maintaining package structure
- Dimensions: %.0fmm x %.0fmm x %.0fmm

Generate the modified 3D mockup.`, userPrompt, dims.Width, dims.Height, dims.Depth)
}
