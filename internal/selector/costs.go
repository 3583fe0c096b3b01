package selector

// Provider/variant catalog. Rates are fixed per-unit costs used for
// estimation only; actual billing lives with the backends.
const (
	ProviderVeo    = "veo"
	ProviderKling  = "kling"
	ProviderWan    = "wan"
	ProviderImagen = "imagen"

	VariantVeoFidelity = "veo-3.0-fidelity"
	VariantVeoStandard = "veo-2.0"
	VariantKlingPro    = "kling-2.6-pro"
	VariantWanTurbo    = "wan-2.6-turbo"
	VariantImagen      = "imagen-004"
)

// Per-second clip generation rates in USD.
var clipRates = map[string]float64{
	VariantVeoFidelity: 0.75,
	VariantVeoStandard: 0.35,
	VariantKlingPro:    0.28,
	VariantWanTurbo:    0.12,
}

// keyframeRate is the per-image cost of the keyframe stage.
const keyframeRate = 0.02

// Placement thresholds.
const (
	// longFormThreshold: workflows longer than this route clips to the
	// cost-efficient provider to keep totals bounded.
	longFormThreshold = 45.0
	// shortClipThreshold: shots at or below this length qualify for the
	// stylistic specialist.
	shortClipThreshold = 4.0
)

// ClipRate returns the per-second rate for a variant, or 0 for unknown
// variants.
func ClipRate(variant string) float64 {
	return clipRates[variant]
}
