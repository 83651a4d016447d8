package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/facecrop/internal/config"
	"github.com/andresmejia3/facecrop/internal/detector"
	"github.com/andresmejia3/facecrop/internal/extract"
	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/andresmejia3/facecrop/internal/utils"
	"github.com/andresmejia3/facecrop/internal/worker"
	"github.com/disintegration/imaging"
	"github.com/spf13/pflag"
)

const testBackend = "cmdtest"

// testFaces is what the cmdtest backend reports for every image.
var (
	testFaces    []types.Face
	factoryCalls int
)

type stubDetector struct{}

func (stubDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	return testFaces, nil
}

func (stubDetector) Close() error { return nil }

func init() {
	detector.Register(testBackend, func(ctx context.Context, o detector.Options) (detector.Detector, error) {
		factoryCalls++
		return stubDetector{}, nil
	})
}

// captureStdout redirects result lines for the duration of the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	old := stdout
	stdout = buf
	t.Cleanup(func() { stdout = old })
	return buf
}

func TestValidateConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.jpg")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     extract.Config
		wantErr bool
	}{
		{"Valid", extract.Config{InputDir: dir, OutputDir: "out", Padding: 0.3}, false},
		{"Zero padding", extract.Config{InputDir: dir, OutputDir: "out", Padding: 0}, false},
		{"Missing input", extract.Config{InputDir: filepath.Join(dir, "nope"), OutputDir: "out", Padding: 0.3}, true},
		{"Input is a file", extract.Config{InputDir: file, OutputDir: "out", Padding: 0.3}, true},
		{"Empty output", extract.Config{InputDir: dir, Padding: 0.3}, true},
		{"Negative padding", extract.Config{InputDir: dir, OutputDir: "out", Padding: -0.1}, true},
		{"NaN padding", extract.Config{InputDir: dir, OutputDir: "out", Padding: math.NaN()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyConfig(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var o Options
	fs.StringVar(&o.Detector, "detector", "insightface", "")
	fs.IntVar(&o.CtxID, "ctx-id", -1, "")
	fs.DurationVar(&o.WorkerTimeout, "worker-timeout", time.Minute, "")
	if err := fs.Parse([]string{"--detector=rekognition"}); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Detector:      "dlib",
		CtxID:         0,
		WorkerTimeout: 5 * time.Second,
		AWSRegion:     "eu-west-1",
	}
	applyConfig(fs, cfg, &o)

	if o.Detector != "rekognition" {
		t.Errorf("Explicit flag should win over env: got %q", o.Detector)
	}
	if o.CtxID != 0 {
		t.Errorf("Env should win over flag default: got CtxID %d", o.CtxID)
	}
	if o.WorkerTimeout != 5*time.Second {
		t.Errorf("Env should win over flag default: got WorkerTimeout %v", o.WorkerTimeout)
	}
	if o.AWSRegion != "eu-west-1" {
		t.Errorf("AWSRegion = %q, want eu-west-1", o.AWSRegion)
	}
}

func TestRunExtract(t *testing.T) {
	DB = nil
	out := captureStdout(t)

	in := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "faces")
	img := imaging.New(300, 300, color.NRGBA{R: 200, G: 150, B: 100, A: 255})
	if err := imaging.Save(img, filepath.Join(in, "portrait.jpg")); err != nil {
		t.Fatal(err)
	}

	testFaces = []types.Face{{Box: image.Rect(100, 100, 200, 200), Score: 0.9}}
	t.Cleanup(func() { testFaces = nil })

	cfg := extract.Config{InputDir: in, OutputDir: outDir, Padding: 0.3, Mode: extract.ModeLargest}
	if err := runExtract(context.Background(), cfg, Options{Detector: testBackend, NoProgress: true}); err != nil {
		t.Fatalf("runExtract failed: %v", err)
	}

	saved := filepath.Join(outDir, "portrait_face.jpg")
	crop, err := imaging.Open(saved)
	if err != nil {
		t.Fatalf("Expected %s to be written: %v", saved, err)
	}
	if b := crop.Bounds(); b.Dx() != 160 || b.Dy() != 160 {
		t.Errorf("Crop size = %dx%d, want 160x160", b.Dx(), b.Dy())
	}

	for _, want := range []string{
		fmt.Sprintf("Input directory: %s", in),
		fmt.Sprintf("Output directory: %s", outDir),
		"Padding: 0.3",
		fmt.Sprintf("Created output directory '%s'", outDir),
		fmt.Sprintf("Saved face to %s", saved),
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunExtract_MissingInputSkipsModelLoad(t *testing.T) {
	DB = nil
	captureStdout(t)
	before := factoryCalls

	cfg := extract.Config{InputDir: filepath.Join(t.TempDir(), "missing"), OutputDir: t.TempDir(), Padding: 0.3}
	if err := runExtract(context.Background(), cfg, Options{Detector: testBackend, NoProgress: true}); err == nil {
		t.Fatal("Expected error for missing input directory")
	}
	if factoryCalls != before {
		t.Error("Detector was initialized even though the input directory is missing")
	}
}

func TestRunExtract_UnknownBackend(t *testing.T) {
	DB = nil
	captureStdout(t)

	cfg := extract.Config{InputDir: t.TempDir(), OutputDir: t.TempDir(), Padding: 0.3}
	err := runExtract(context.Background(), cfg, Options{Detector: "no-such-backend", NoProgress: true})
	if !errors.Is(err, detector.ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}

func TestWorkerCmd(t *testing.T) {
	sc := utils.NewSafeCommand(context.Background(), "python3")
	wrapped := fmt.Errorf("face detection failed: %w", &worker.Error{Err: errors.New("boom"), Cmd: sc})

	if got := workerCmd(wrapped); got != sc {
		t.Errorf("workerCmd() did not unwrap the worker command")
	}
	if got := workerCmd(errors.New("plain")); got != nil {
		t.Errorf("workerCmd() = %v, want nil", got)
	}
}

func TestBatchDefaults(t *testing.T) {
	if batchCfg.Mode != extract.ModeAll {
		t.Errorf("batch mode = %v, want all", batchCfg.Mode)
	}
	for flag, want := range map[string]string{
		"input":   "./photos",
		"output":  "./extracted_faces",
		"padding": "0.3",
	} {
		f := batchCmd.Flags().Lookup(flag)
		if f == nil {
			t.Fatalf("batch has no --%s flag", flag)
		}
		if f.DefValue != want {
			t.Errorf("--%s default = %q, want %q", flag, f.DefValue, want)
		}
	}
}
