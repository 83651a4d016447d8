package extract

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facecrop/internal/types"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// IsImageFile reports whether name carries one of the recognized image extensions (case-insensitive).
func IsImageFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// PadRegion expands box by floor(padding*w) and floor(padding*h) on each side and clamps it to bounds.
// The result always satisfies bounds.Min <= Min <= Max <= bounds.Max.
func PadRegion(box image.Rectangle, padding float64, bounds image.Rectangle) image.Rectangle {
	padX := int(math.Floor(padding * float64(box.Dx())))
	padY := int(math.Floor(padding * float64(box.Dy())))

	x1 := clamp(box.Min.X-padX, bounds.Min.X, bounds.Max.X)
	y1 := clamp(box.Min.Y-padY, bounds.Min.Y, bounds.Max.Y)
	x2 := clamp(box.Max.X+padX, x1, bounds.Max.X)
	y2 := clamp(box.Max.Y+padY, y1, bounds.Max.Y)

	// Built directly: image.Rect would canonicalize and hide a bad clamp
	return image.Rectangle{Min: image.Pt(x1, y1), Max: image.Pt(x2, y2)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Largest returns the index of the face with the biggest box area. Ties go to the earliest face.
// Returns -1 for an empty slice.
func Largest(faces []types.Face) int {
	best := -1
	maxArea := 0
	for i, f := range faces {
		if area := f.Area(); best == -1 || area > maxArea {
			best = i
			maxArea = area
		}
	}
	return best
}

// OutputName builds the crop file name: <stem>_face.jpg, or <stem>_face_<index>.jpg when index >= 0.
// The stem is the base name up to its first dot.
func OutputName(sourcePath string, index int) string {
	stem, _, _ := strings.Cut(filepath.Base(sourcePath), ".")
	if index < 0 {
		return stem + "_face.jpg"
	}
	return fmt.Sprintf("%s_face_%d.jpg", stem, index)
}
