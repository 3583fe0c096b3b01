package runner

import (
	"fmt"
	"strings"

	"github.com/reelflow/reelflow/internal/plan"
)

// BuildKeyframePrompt assembles the still-image prompt from a shot and
// the workflow style.
func BuildKeyframePrompt(shot plan.Shot, style plan.StyleSpec) string {
	parts := []string{shot.SceneDescription}
	if shot.Framing != "" {
		parts = append(parts, "Framing: "+shot.Framing)
	}
	if shot.Lighting != "" {
		parts = append(parts, "Lighting: "+shot.Lighting)
	}
	if shot.Mood != "" {
		parts = append(parts, "Mood: "+shot.Mood)
	}
	if len(style.VisualKeywords) > 0 {
		parts = append(parts, "Style: "+strings.Join(style.VisualKeywords, ", "))
	}
	if len(style.ColorPalette) > 0 {
		parts = append(parts, "Colors: "+strings.Join(style.ColorPalette, ", "))
	}
	return strings.Join(parts, ". ") + ". Cinematic still frame, high quality, professional cinematography."
}

// BuildClipPrompt assembles the motion prompt for a shot.
func BuildClipPrompt(shot plan.Shot) string {
	var b strings.Builder
	b.WriteString(shot.SceneDescription)
	if shot.CameraMovement != "" {
		fmt.Fprintf(&b, ". %s", shot.CameraMovement)
	}
	if shot.Lighting != "" {
		fmt.Fprintf(&b, ". %s", shot.Lighting)
	}
	b.WriteString(".")
	return b.String()
}
