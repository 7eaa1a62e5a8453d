// Package scene classifies photographs by scene type, lighting and composition.
package scene

import (
	"fmt"
	"sort"

	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Type is the scene classification
type Type int

// Scene types in priority order; Mixed reports more than one.
const (
	TypePortrait Type = iota
	TypeLandscape
	TypeLowLight
	TypeHighContrast
	TypeNeutral
	TypeMixed
)

// String returns the scene type name
func (t Type) String() string {
	switch t {
	case TypePortrait:
		return "portrait"
	case TypeLandscape:
		return "landscape"
	case TypeLowLight:
		return "low_light"
	case TypeHighContrast:
		return "high_contrast"
	case TypeNeutral:
		return "neutral"
	case TypeMixed:
		return "mixed"
	default:
		return fmt.Sprintf("scene(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Candidate is a scene type whose threshold was met
type Candidate struct {
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Signals are the independent measurements the classifier decides on
type Signals struct {
	SkinCoverage float64
	// CompositionSupport is true when the skin mass is centred and the
	// background carries little detail
	CompositionSupport bool
	// NatureCoverage is the union of sky and foliage coverage
	NatureCoverage float64
	MeanLuminance  float64
	DynamicRange   float64
}

// Thresholds define when each scene type applies. Each Span is the signal
// distance beyond the threshold at which confidence saturates.
type Thresholds struct {
	PortraitSkin      float64
	PortraitSpan      float64
	LandscapeNature   float64
	LandscapeSpan     float64
	LowLightLuminance float64
	HighContrastRange float64
	HighContrastSpan  float64
}

// DefaultThresholds returns the default classifier thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		PortraitSkin:      0.2,
		PortraitSpan:      0.3,
		LandscapeNature:   0.35,
		LandscapeSpan:     0.4,
		LowLightLuminance: 55,
		HighContrastRange: 0.8,
		HighContrastSpan:  0.2,
	}
}

// Classification is the classifier outcome
type Classification struct {
	Type       Type        `json:"type"`
	Confidence float64     `json:"confidence"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Classify applies the priority rule Portrait > Landscape > LowLight >
// HighContrast > Neutral. When more than one type qualifies the result is
// Mixed with the two strongest candidates, ordered by confidence and then by
// priority.
func Classify(s Signals, th Thresholds) Classification {
	var met []Candidate
	if s.SkinCoverage >= th.PortraitSkin && s.CompositionSupport {
		met = append(met, Candidate{TypePortrait, margin(s.SkinCoverage-th.PortraitSkin, th.PortraitSpan)})
	}
	if s.NatureCoverage >= th.LandscapeNature {
		met = append(met, Candidate{TypeLandscape, margin(s.NatureCoverage-th.LandscapeNature, th.LandscapeSpan)})
	}
	if s.MeanLuminance < th.LowLightLuminance {
		met = append(met, Candidate{TypeLowLight, margin(th.LowLightLuminance-s.MeanLuminance, th.LowLightLuminance)})
	}
	if s.DynamicRange > th.HighContrastRange {
		met = append(met, Candidate{TypeHighContrast, margin(s.DynamicRange-th.HighContrastRange, th.HighContrastSpan)})
	}

	switch len(met) {
	case 0:
		return Classification{Type: TypeNeutral, Confidence: neutralConfidence(s, th)}
	case 1:
		return Classification{Type: met[0].Type, Confidence: met[0].Confidence, Candidates: met}
	}

	// met is already in priority order, so a stable sort keeps priority on ties
	sort.SliceStable(met, func(i, j int) bool {
		return met[i].Confidence > met[j].Confidence
	})
	top := met[:2:2]
	return Classification{Type: TypeMixed, Confidence: top[0].Confidence, Candidates: top}
}

// margin maps the distance past a threshold to a confidence in [0.5,1]
func margin(excess, span float64) float64 {
	return types.Clamp(0.5+0.5*types.SafeDiv(excess, span, 1), 0, 1)
}

// neutralConfidence is high when every signal is far from its threshold
func neutralConfidence(s Signals, th Thresholds) float64 {
	closest := types.Clamp(types.SafeDiv(s.SkinCoverage, th.PortraitSkin, 0), 0, 1)
	for _, p := range []float64{
		types.SafeDiv(s.NatureCoverage, th.LandscapeNature, 0),
		types.SafeDiv(th.LowLightLuminance, s.MeanLuminance, 0),
		types.SafeDiv(s.DynamicRange, th.HighContrastRange, 0),
	} {
		if p > closest {
			closest = p
		}
	}
	return types.Clamp(1-0.5*closest, 0, 1)
}
