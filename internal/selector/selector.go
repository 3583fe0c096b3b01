// Package selector decides which generation provider/variant handles
// each shot under a budget policy, and aggregates cost estimates.
package selector

import (
	"fmt"
	"strings"

	"github.com/reelflow/reelflow/internal/plan"
)

// SelectPlacements returns one placement per shot in shot order. It is
// a pure function of spec + policy: no I/O, no side effects, identical
// inputs always yield identical placements, which makes quotes
// reproducible and cacheable.
func SelectPlacements(spec *plan.WorkflowSpec, policy plan.BudgetPolicy) ([]plan.Placement, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown budget policy %q", policy)
	}

	cinematic := hasCinematicEmphasis(spec.Style)
	placements := make([]plan.Placement, 0, len(spec.Shots))
	for _, shot := range spec.Shots {
		provider, variant := placeShot(spec, shot, policy, cinematic)
		placements = append(placements, plan.Placement{
			ShotNumber:    shot.ShotNumber,
			Provider:      provider,
			Variant:       variant,
			EstimatedCost: shotCost(shot, variant),
		})
	}
	return placements, nil
}

// placeShot applies the placement decision table. The conditions are
// ordered; the first match wins.
func placeShot(spec *plan.WorkflowSpec, shot plan.Shot, policy plan.BudgetPolicy, cinematic bool) (provider, variant string) {
	switch {
	case needsNativeAudio(shot) || policy == plan.PolicyPremium:
		// Synchronized dialogue or a premium budget buys the
		// highest-fidelity variant.
		return ProviderVeo, VariantVeoFidelity
	case isHighMotion(shot) || spec.Duration > longFormThreshold ||
		(policy == plan.PolicyEconomy && !cinematic):
		return ProviderWan, VariantWanTurbo
	case (shot.ShotLength() <= shortClipThreshold && cinematic) ||
		(policy == plan.PolicyEconomy && cinematic):
		return ProviderKling, VariantKlingPro
	default:
		return ProviderVeo, VariantVeoStandard
	}
}

// shotCost estimates one shot: clip seconds at the variant rate plus
// one keyframe image.
func shotCost(shot plan.Shot, variant string) float64 {
	return shot.ShotLength()*ClipRate(variant) + keyframeRate
}

// TotalCost sums estimated costs across placements.
func TotalCost(placements []plan.Placement) float64 {
	total := 0.0
	for _, p := range placements {
		total += p.EstimatedCost
	}
	return total
}

// dialogueSignals mark shots that need natively synchronized audio.
var dialogueSignals = []string{"dialogue", "speaking", "talking", "lip sync", "conversation", "sings", "singing"}

func needsNativeAudio(shot plan.Shot) bool {
	return containsAny(shot.SceneDescription+" "+shot.Mood, dialogueSignals)
}

// motionSignals mark high-motion/action content.
var motionSignals = []string{"action", "chase", "running", "sprint", "fast", "whip pan", "crash", "jump", "racing", "explosion"}

func isHighMotion(shot plan.Shot) bool {
	return containsAny(shot.SceneDescription+" "+shot.CameraMovement+" "+shot.Mood, motionSignals)
}

// cinematicSignals mark an aesthetic/cinematic style emphasis.
var cinematicSignals = []string{"cinematic", "film grain", "16mm", "35mm", "anamorphic", "painterly", "noir", "symmetr"}

func hasCinematicEmphasis(style plan.StyleSpec) bool {
	joined := strings.Join(style.VisualKeywords, " ")
	return containsAny(joined, cinematicSignals)
}

func containsAny(text string, signals []string) bool {
	lower := strings.ToLower(text)
	for _, s := range signals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
