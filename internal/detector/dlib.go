//go:build dlib

package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/disintegration/imaging"
)

func init() {
	Register("dlib", newDlib)
}

// dlibDetector uses go-face. Needs shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat in ModelsDir.
type dlibDetector struct {
	mu  sync.Mutex
	rec *face.Recognizer
	cnn bool
}

func newDlib(ctx context.Context, opts Options) (Detector, error) {
	rec, err := face.NewRecognizer(opts.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize dlib recognizer from %s: %w", opts.ModelsDir, err)
	}
	// dlib only offloads the CNN detector to CUDA; HOG always runs on CPU
	return &dlibDetector{rec: rec, cnn: opts.CtxID != CPU}, nil
}

func (d *dlibDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var found []face.Face
	var err error
	if d.cnn {
		found, err = d.rec.RecognizeCNN(buf.Bytes())
	} else {
		found, err = d.rec.Recognize(buf.Bytes())
	}
	if err != nil {
		return nil, fmt.Errorf("dlib detection failed: %w", err)
	}

	faces := make([]types.Face, 0, len(found))
	for _, f := range found {
		faces = append(faces, types.Face{Box: f.Rectangle, Score: 1})
	}
	return faces, nil
}

func (d *dlibDetector) Close() error {
	d.rec.Close()
	return nil
}
