//go:build opencv

package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facecrop/internal/types"
	"gocv.io/x/gocv"
)

const cascadeFile = "haarcascade_frontalface_default.xml"

func init() {
	Register("opencv", newOpenCV)
}

type openCVDetector struct {
	classifier gocv.CascadeClassifier
}

func newOpenCV(ctx context.Context, opts Options) (Detector, error) {
	if opts.CtxID != CPU {
		fmt.Fprintf(os.Stderr, "⚠️  opencv cascade runs on CPU only, ignoring ctx-id %d\n", opts.CtxID)
	}

	classifier := gocv.NewCascadeClassifier()
	path := filepath.Join(opts.ModelsDir, cascadeFile)
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("cannot load cascade classifier %s", path)
	}
	return &openCVDetector{classifier: classifier}, nil
}

func (d *openCVDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	defer mat.Close()

	rects := d.classifier.DetectMultiScale(mat)
	faces := make([]types.Face, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, types.Face{Box: r, Score: 1})
	}
	return faces, nil
}

func (d *openCVDetector) Close() error {
	return d.classifier.Close()
}
