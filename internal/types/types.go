package types

import "image"

// Face is a single detection returned by a detector backend.
// Box is (x1, y1)-(x2, y2) in source image pixels.
type Face struct {
	Box   image.Rectangle
	Score float64 // 0..1, 1 when the backend has no confidence
}

// Area returns (x2-x1)*(y2-y1) of the raw detection box.
func (f Face) Area() int {
	return f.Box.Dx() * f.Box.Dy()
}

// Crop describes one face image written to the output directory
type Crop struct {
	ImageID    string
	SourcePath string
	OutputPath string
	Index      int
	Face       image.Rectangle
	Region     image.Rectangle // Padded and clamped
	Score      float64
}

