// Package performance maps the host's device tier to processing budgets.
//
// A Profile is resolved once when an operation starts and stays fixed until
// it finishes; changing the mode only affects operations started afterwards.
package performance

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Mode is the caller-supplied performance tier
type Mode int

const (
	Lite Mode = iota
	Medium
	Advanced
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Lite:
		return "lite"
	case Medium:
		return "medium"
	case Advanced:
		return "advanced"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Valid reports whether m is one of the three tiers
func (m Mode) Valid() bool {
	return m >= Lite && m <= Advanced
}

// ParseMode parses a mode name (case-insensitive)
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lite", "low":
		return Lite, nil
	case "medium", "mid", "":
		return Medium, nil
	case "advanced", "high":
		return Advanced, nil
	default:
		return Medium, fmt.Errorf("unknown performance mode %q (use lite, medium or advanced)", s)
	}
}

// Profile holds the budgets consumed by the analyzers, the enhancement
// engine and the healing pipeline.
type Profile struct {
	Mode Mode

	// AnalysisMaxDim caps the long side of the buffer used for histogram
	// and scene analysis. 0 means full resolution.
	AnalysisMaxDim int

	// SearchMaxDim caps the side of the square search area around a
	// healing mask in which source candidates are proposed.
	SearchMaxDim int

	// PatchSize is the odd side length of synthesis patches
	PatchSize int

	// MaxCandidates bounds the ranked candidate list
	MaxCandidates int

	// Scales is the number of pyramid levels used for synthesis
	Scales int

	// SearchStride is the step between tested source positions
	SearchStride int

	// SmoothingRadius is the bilateral kernel radius for portrait smoothing
	SmoothingRadius int

	// FeatherRadius is the mask-edge falloff distance for landscape grading
	FeatherRadius int
}

var profiles = map[Mode]Profile{
	Lite: {
		Mode:            Lite,
		AnalysisMaxDim:  256,
		SearchMaxDim:    192,
		PatchSize:       7,
		MaxCandidates:   6,
		Scales:          1,
		SearchStride:    3,
		SmoothingRadius: 2,
		FeatherRadius:   6,
	},
	Medium: {
		Mode:            Medium,
		AnalysisMaxDim:  512,
		SearchMaxDim:    384,
		PatchSize:       9,
		MaxCandidates:   12,
		Scales:          2,
		SearchStride:    2,
		SmoothingRadius: 3,
		FeatherRadius:   10,
	},
	Advanced: {
		Mode:            Advanced,
		AnalysisMaxDim:  1024,
		SearchMaxDim:    768,
		PatchSize:       11,
		MaxCandidates:   24,
		Scales:          3,
		SearchStride:    1,
		SmoothingRadius: 4,
		FeatherRadius:   16,
	},
}

// ProfileFor returns the budget table for a mode. Unknown modes fall back to Medium.
func ProfileFor(mode Mode) Profile {
	if p, ok := profiles[mode]; ok {
		return p
	}
	return profiles[Medium]
}

// Manager holds the host's current mode. Operations call Snapshot once at
// start and keep the returned Profile for their whole duration.
type Manager struct {
	mode atomic.Int32
}

// NewManager creates a manager set to mode
func NewManager(mode Mode) *Manager {
	m := &Manager{}
	m.Set(mode)
	return m
}

// Set changes the mode for operations started from now on
func (m *Manager) Set(mode Mode) {
	if !mode.Valid() {
		mode = Medium
	}
	m.mode.Store(int32(mode))
}

// Mode returns the current mode
func (m *Manager) Mode() Mode {
	return Mode(m.mode.Load())
}

// Snapshot resolves the current mode into a fixed Profile
func (m *Manager) Snapshot() Profile {
	return ProfileFor(m.Mode())
}
