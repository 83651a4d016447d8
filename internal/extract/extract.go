// Package extract crops padded face regions out of images and writes them as JPEGs.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facecrop/internal/detector"
	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/andresmejia3/facecrop/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/schollz/progressbar/v3"
)

const (
	DefaultPadding = 0.3
	DefaultQuality = 95
)

// Mode selects which detected faces are written.
type Mode int

const (
	// ModeLargest writes only the largest face as <stem>_face.jpg.
	ModeLargest Mode = iota
	// ModeAll writes every face as <stem>_face_<i>.jpg in detection order.
	ModeAll
)

func (m Mode) String() string {
	if m == ModeAll {
		return "all"
	}
	return "largest"
}

// Config is everything a run needs besides the detector.
type Config struct {
	InputDir  string
	OutputDir string
	Padding   float64
	Mode      Mode
	Quality   int // JPEG quality, DefaultQuality when zero
}

// Recorder receives every crop that was written to disk.
type Recorder interface {
	RecordCrop(ctx context.Context, c types.Crop) error
}

// Summary counts what a directory run did.
type Summary struct {
	Files   int // Image files handed to the extractor
	Saved   int // Face crops written
	Skipped int // Files that produced no crop
}

type Extractor struct {
	det detector.Detector
	cfg Config

	Out      io.Writer // Per-file status lines
	Log      io.Writer // Warnings
	Progress io.Writer // Progress bar; nil disables it
	Recorder Recorder
}

func New(det detector.Detector, cfg Config) *Extractor {
	if cfg.Quality <= 0 {
		cfg.Quality = DefaultQuality
	}
	return &Extractor{
		det: det,
		cfg: cfg,
		Out: os.Stdout,
		Log: os.Stderr,
	}
}

// ExtractFile processes one image. Unreadable images, images without faces and images the
// detector rejects are reported and skipped (nil crops, nil error). A returned error means the
// detector itself failed and the batch cannot continue.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]types.Crop, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		fmt.Fprintf(e.Out, "Could not read image: %s\n", path)
		return nil, nil
	}

	faces, err := e.det.Detect(ctx, img)
	if err != nil {
		if errors.Is(err, detector.ErrUnsupportedImage) {
			fmt.Fprintf(e.Out, "Detector rejected image: %s (%v)\n", path, err)
			return nil, nil
		}
		return nil, fmt.Errorf("face detection failed on %s: %w", path, err)
	}

	if len(faces) == 0 {
		fmt.Fprintf(e.Out, "No faces detected in image: %s\n", path)
		return nil, nil
	}

	var targets []int
	if e.cfg.Mode == ModeAll {
		fmt.Fprintf(e.Out, "Found %d face(s) in %s\n", len(faces), path)
		for i := range faces {
			targets = append(targets, i)
		}
	} else {
		targets = []int{Largest(faces)}
	}

	imageID, err := utils.GenerateImageID(path)
	if err != nil {
		fmt.Fprintf(e.Log, "⚠️  Could not fingerprint %s: %v\n", path, err)
	}

	bounds := img.Bounds()
	var crops []types.Crop
	for _, i := range targets {
		nameIndex := i
		if e.cfg.Mode != ModeAll {
			nameIndex = -1
		}

		region := PadRegion(faces[i].Box, e.cfg.Padding, bounds)
		if region.Empty() {
			fmt.Fprintf(e.Out, "Face %d in %s lies outside the image, skipping\n", i, path)
			continue
		}

		outPath := filepath.Join(e.cfg.OutputDir, OutputName(path, nameIndex))
		if err := imaging.Save(opaque(imaging.Crop(img, region)), outPath, imaging.JPEGQuality(e.cfg.Quality)); err != nil {
			fmt.Fprintf(e.Out, "Could not save face to %s: %v\n", outPath, err)
			continue
		}
		fmt.Fprintf(e.Out, "Saved face to %s\n", outPath)

		crop := types.Crop{
			ImageID:    imageID,
			SourcePath: path,
			OutputPath: outPath,
			Index:      i,
			Face:       faces[i].Box,
			Region:     region,
			Score:      faces[i].Score,
		}
		crops = append(crops, crop)

		if e.Recorder != nil {
			if err := e.Recorder.RecordCrop(ctx, crop); err != nil {
				fmt.Fprintf(e.Log, "⚠️  Failed to record crop %s: %v\n", outPath, err)
			}
		}
	}
	return crops, nil
}

// ProcessDir creates the output directory if needed, then runs ExtractFile on every image
// in the input directory (non-recursive, os.ReadDir order).
func (e *Extractor) ProcessDir(ctx context.Context) (Summary, error) {
	var sum Summary

	if _, err := os.Stat(e.cfg.OutputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(e.cfg.OutputDir, 0755); err != nil {
			return sum, fmt.Errorf("failed to create output directory: %w", err)
		}
		fmt.Fprintf(e.Out, "Created output directory '%s'\n", e.cfg.OutputDir)
	}

	files, err := ListImages(e.cfg.InputDir)
	if err != nil {
		return sum, err
	}

	progressOut := e.Progress
	if progressOut == nil {
		progressOut = io.Discard
	}
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("🖼️  Extracting faces"),
		progressbar.OptionSetWriter(progressOut),
		progressbar.OptionShowCount(),
	)

	for _, path := range files {
		// Stop between files on Ctrl+C, never mid-write
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		crops, err := e.ExtractFile(ctx, path)
		sum.Files++
		if err != nil {
			return sum, err
		}
		if len(crops) == 0 {
			sum.Skipped++
		}
		sum.Saved += len(crops)
		bar.Add(1)
	}
	bar.Finish()

	return sum, nil
}

// opaque drops alpha in place, keeping the stored colour of transparent pixels.
// The JPEG encoder would otherwise premultiply them to black.
func opaque(img *image.NRGBA) *image.NRGBA {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

// ListImages returns the paths of entries in dir whose names end in a recognized image extension.
// Entries are not stat'ed: a directory named like an image is returned and fails at decode time.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if IsImageFile(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
