package extract

import (
	"image"
	"math/rand"
	"testing"

	"github.com/andresmejia3/facecrop/internal/types"
)

func TestPadRegion(t *testing.T) {
	bounds := image.Rect(0, 0, 300, 300)
	tests := []struct {
		name    string
		box     image.Rectangle
		padding float64
		want    image.Rectangle
	}{
		{
			name:    "Centered face, no clamping",
			box:     image.Rect(100, 100, 200, 200),
			padding: 0.3,
			want:    image.Rect(70, 70, 230, 230),
		},
		{
			name:    "Zero padding is the raw box",
			box:     image.Rect(100, 100, 200, 200),
			padding: 0,
			want:    image.Rect(100, 100, 200, 200),
		},
		{
			name:    "Pad is floored per axis",
			box:     image.Rect(100, 100, 133, 147), // 33x47 -> pad 9x14
			padding: 0.3,
			want:    image.Rect(91, 86, 142, 161),
		},
		{
			name:    "Clamped at top-left corner",
			box:     image.Rect(10, 5, 110, 105),
			padding: 0.3,
			want:    image.Rect(0, 0, 140, 135),
		},
		{
			name:    "Clamped at bottom-right corner",
			box:     image.Rect(250, 260, 300, 300),
			padding: 0.5,
			want:    image.Rect(225, 240, 300, 300),
		},
		{
			name:    "Box partly outside the image",
			box:     image.Rect(-20, -20, 40, 40),
			padding: 0.3,
			want:    image.Rect(0, 0, 58, 58),
		},
		{
			name:    "Box entirely outside collapses to empty",
			box:     image.Rect(350, 350, 360, 360),
			padding: 0.1,
			want:    image.Rectangle{Min: image.Pt(300, 300), Max: image.Pt(300, 300)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PadRegion(tt.box, tt.padding, bounds)
			if got != tt.want {
				t.Errorf("PadRegion(%v, %v) = %v, want %v", tt.box, tt.padding, got, tt.want)
			}
		})
	}
}

func TestPadRegion_StaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		w, h := 1+rng.Intn(500), 1+rng.Intn(500)
		bounds := image.Rect(0, 0, w, h)
		box := image.Rect(rng.Intn(2*w)-w/2, rng.Intn(2*h)-h/2, rng.Intn(2*w)-w/2, rng.Intn(2*h)-h/2)
		padding := rng.Float64() * 2

		r := PadRegion(box, padding, bounds)
		if r.Min.X < 0 || r.Min.X > r.Max.X || r.Max.X > w || r.Min.Y < 0 || r.Min.Y > r.Max.Y || r.Max.Y > h {
			t.Fatalf("PadRegion(%v, %.3f, %v) = %v violates bounds", box, padding, bounds, r)
		}
	}
}

func TestLargest(t *testing.T) {
	face := func(x1, y1, x2, y2 int) types.Face { return types.Face{Box: image.Rect(x1, y1, x2, y2)} }

	tests := []struct {
		name  string
		faces []types.Face
		want  int
	}{
		{name: "Empty", faces: nil, want: -1},
		{name: "Single", faces: []types.Face{face(0, 0, 10, 10)}, want: 0},
		{name: "Largest last", faces: []types.Face{face(0, 0, 10, 10), face(0, 0, 20, 20)}, want: 1},
		{name: "Tie goes to first", faces: []types.Face{face(0, 0, 5, 5), face(0, 0, 20, 10), face(50, 50, 60, 70)}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Largest(tt.faces); got != tt.want {
				t.Errorf("Largest() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		path  string
		index int
		want  string
	}{
		{"photos/alice.jpg", -1, "alice_face.jpg"},
		{"photos/alice.PNG", 0, "alice_face_0.jpg"},
		{"photos/group.jpeg", 12, "group_face_12.jpg"},
		{"/abs/holiday.2024.png", -1, "holiday_face.jpg"}, // Stem ends at the first dot
	}

	for _, tt := range tests {
		if got := OutputName(tt.path, tt.index); got != tt.want {
			t.Errorf("OutputName(%q, %d) = %q, want %q", tt.path, tt.index, got, tt.want)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	tests := map[string]bool{
		"a.jpg":      true,
		"a.JPG":      true,
		"a.Jpeg":     true,
		"a.png":      true,
		"a.gif":      false,
		"a.jpg.txt":  false,
		"notes":      false,
		"archive.pn": false,
	}
	for name, want := range tests {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v, want %v", name, got, want)
		}
	}
}
