package detector

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/andresmejia3/facecrop/internal/worker"
)

func init() {
	Register("insightface", newInsightFace)
}

// insightFace runs insightface.app.FaceAnalysis in a Python worker process.
type insightFace struct {
	w *worker.PythonWorker
}

func newInsightFace(ctx context.Context, opts Options) (Detector, error) {
	w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
		Python:             opts.Python,
		Script:             opts.WorkerScript,
		CtxID:              opts.CtxID,
		DetectionThreshold: opts.DetectionThreshold,
		ReadTimeout:        opts.WorkerTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &insightFace{w: w}, nil
}

func (d *insightFace) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	faces, err := d.w.Detect(img)
	var remote *worker.RemoteError
	if errors.As(err, &remote) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, remote.Msg)
	}
	if err != nil {
		return nil, &worker.Error{Err: err, Cmd: d.w.Cmd}
	}
	return faces, nil
}

func (d *insightFace) Close() error {
	return d.w.Close()
}
