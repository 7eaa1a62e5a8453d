package processing

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/menta2k/scene-enhancer/pkg/types"
)

// SupportedFormats lists the encodings SaveImage can write
var SupportedFormats = []string{"jpg", "jpeg", "png", "webp"}

// ImageInfo contains basic buffer metadata
type ImageInfo struct {
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	AspectRatio float64      `json:"aspect_ratio"`
	Area        int          `json:"area"`
	Layout      types.Layout `json:"-"`
}

// GetImageInfo returns basic information about a buffer
func GetImageInfo(buf *types.PixelBuffer) ImageInfo {
	return ImageInfo{
		Width:       buf.Width,
		Height:      buf.Height,
		AspectRatio: types.SafeDiv(float64(buf.Width), float64(buf.Height), 0),
		Area:        buf.Area(),
		Layout:      buf.Layout,
	}
}

// ValidateSize checks that a buffer meets a minimum side length
func ValidateSize(buf *types.PixelBuffer, minSize int) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if buf.Width < minSize || buf.Height < minSize {
		return fmt.Errorf("%w: image too small: %dx%d (minimum: %d)",
			types.ErrInvalidInput, buf.Width, buf.Height, minSize)
	}
	return nil
}

// IsFormatSupported reports whether format names a supported output encoding
func IsFormatSupported(format string) bool {
	for _, supported := range SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// FormatFromPath returns the lower-case extension of path without the dot
func FormatFromPath(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
