package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput reports an empty buffer, a mask that does not fit the
	// buffer or a parameter outside its valid range. No partial output is produced.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled reports that the caller cancelled a running operation
	ErrCancelled = errors.New("operation cancelled")
)

// Cancelled wraps a context error so it matches both ErrCancelled and the cause
func Cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// Status qualifies a successful result
type Status int

const (
	StatusOK Status = iota
	// StatusNoApplicableRegion means a selective enhancement found nothing to
	// work on; the returned buffer equals the input.
	StatusNoApplicableRegion
	// StatusDegraded means healing completed but some patches were matched
	// below the quality threshold.
	StatusDegraded
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoApplicableRegion:
		return "no_applicable_region"
	case StatusDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Lighting is the coarse illumination class of an image
type Lighting int

const (
	LightingNormal Lighting = iota
	LightingLowLight
	LightingBacklit
	LightingHighKey
	LightingHarsh
)

// String returns the lighting name
func (l Lighting) String() string {
	switch l {
	case LightingNormal:
		return "normal"
	case LightingLowLight:
		return "low_light"
	case LightingBacklit:
		return "backlit"
	case LightingHighKey:
		return "high_key"
	case LightingHarsh:
		return "harsh"
	default:
		return fmt.Sprintf("lighting(%d)", int(l))
	}
}

// MarshalText implements encoding.TextMarshaler
func (l Lighting) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// WeightMap is a graded per-pixel coverage in [0,1]
type WeightMap struct {
	Width  int
	Height int
	Values []float32
}

// NewWeightMap allocates an all-zero weight map
func NewWeightMap(width, height int) *WeightMap {
	return &WeightMap{Width: width, Height: height, Values: make([]float32, width*height)}
}

// At returns the weight of pixel (x, y)
func (w *WeightMap) At(x, y int) float32 {
	return w.Values[y*w.Width+x]
}

// Threshold converts the weights to a binary mask
func (w *WeightMap) Threshold(t float32) *Mask {
	m := NewMask(w.Width, w.Height)
	for i, v := range w.Values {
		m.bits[i] = v >= t
	}
	return m
}
