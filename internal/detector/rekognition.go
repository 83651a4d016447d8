package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/disintegration/imaging"
)

func init() {
	Register("rekognition", newRekognition)
}

// Rekognition rejects these per request; the client remains usable.
var rekognitionImageErrors = map[string]bool{
	"InvalidImageFormatException": true,
	"ImageTooLargeException":      true,
	"InvalidParameterException":   true,
}

type detectFacesAPI interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

type rekognitionDetector struct {
	client    detectFacesAPI
	threshold float64
}

func newRekognition(ctx context.Context, opts Options) (Detector, error) {
	// Setup AWS -- https://pkg.go.dev/github.com/aws/aws-sdk-go-v2/service/rekognition
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS config: %w", err)
	}
	return &rekognitionDetector{
		client:    rekognition.NewFromConfig(cfg),
		threshold: opts.DetectionThreshold,
	}, nil
}

func (d *rekognitionDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	out, err := d.client.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image: &rtypes.Image{Bytes: buf.Bytes()},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && rekognitionImageErrors[apiErr.ErrorCode()] {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("rekognition DetectFaces failed: %w", err)
	}

	b := img.Bounds()
	return filterScore(rekognitionFaces(out.FaceDetails, b.Dx(), b.Dy()), d.threshold), nil
}

func (d *rekognitionDetector) Close() error { return nil }

// rekognitionFaces converts ratio bounding boxes into pixel boxes, truncating like the other backends.
func rekognitionFaces(details []rtypes.FaceDetail, width, height int) []types.Face {
	faces := make([]types.Face, 0, len(details))
	for _, fd := range details {
		bb := fd.BoundingBox
		if bb == nil {
			continue
		}
		left := float64(aws.ToFloat32(bb.Left))
		top := float64(aws.ToFloat32(bb.Top))
		w := float64(aws.ToFloat32(bb.Width))
		h := float64(aws.ToFloat32(bb.Height))

		faces = append(faces, types.Face{
			Box: image.Rect(
				int(left*float64(width)),
				int(top*float64(height)),
				int((left+w)*float64(width)),
				int((top+h)*float64(height)),
			),
			Score: float64(aws.ToFloat32(fd.Confidence)) / 100,
		})
	}
	return faces
}
