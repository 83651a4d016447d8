// Package detector owns the face-detection capability. A Detector is created once per run,
// passed into the extractor and closed when the run ends.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/andresmejia3/facecrop/internal/types"
)

// CPU is the CtxID that keeps inference off any accelerator.
const CPU = -1

var (
	// ErrUnsupportedImage marks a per-image rejection; the backend is still usable.
	ErrUnsupportedImage = errors.New("image not supported by detector")
	ErrUnknownBackend   = errors.New("unknown detector backend")
)

// Detector finds faces in a decoded image. Faces are returned in backend output order.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Face, error)
	Close() error
}

// Options configures backend initialization.
type Options struct {
	Backend            string
	CtxID              int
	DetectionThreshold float64
	Python             string
	WorkerScript       string
	WorkerTimeout      time.Duration
	ModelsDir          string
	AWSRegion          string
}

// Factory builds a backend. It must fail if the model cannot be loaded.
type Factory func(ctx context.Context, opts Options) (Detector, error)

var backends = map[string]Factory{}

// Register makes a backend available by name. Called from init.
func Register(name string, f Factory) {
	backends[name] = f
}

// Backends lists the compiled-in backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New initializes the named backend.
func New(ctx context.Context, opts Options) (Detector, error) {
	f, ok := backends[opts.Backend]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownBackend, opts.Backend, strings.Join(Backends(), ", "))
	}
	return f(ctx, opts)
}

// filterScore drops faces below threshold, keeping order.
func filterScore(faces []types.Face, threshold float64) []types.Face {
	kept := faces[:0]
	for _, f := range faces {
		if f.Score >= threshold {
			kept = append(kept, f)
		}
	}
	return kept
}
