package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/andresmejia3/facecrop/internal/utils" // Using the SafeCommand wrapper
	"github.com/disintegration/imaging"
)

// Response status bytes written by python/worker.py
const (
	statusOK    byte = 0
	statusError byte = 1
	statusReady byte = 2
)

// bytes per face record: [4]int32 box + float32 score
const faceRecordSize = 4*4 + 4

// Config controls how the Python detection worker is launched.
type Config struct {
	Python             string
	Script             string
	CtxID              int // -1 = CPU, >= 0 = GPU id
	DetectionThreshold float64
	ReadTimeout        time.Duration
}

type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

// Error carries the worker command so callers can dump its captured stderr.
type Error struct {
	Err error
	Cmd *utils.SafeCommand
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// NewPythonWorker starts the worker process and blocks until it reports that the model is loaded.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script,
		"--ctx-id", strconv.Itoa(cfg.CtxID),
		"--det-thresh", strconv.FormatFloat(cfg.DetectionThreshold, 'f', -1, 64),
	)

	// Create a side-channel pipe (FD 3) so library chatter on stdout can't corrupt frames
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	pw := &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}

	// No deadline here: the first run may download model weights.
	if err := pw.awaitReady(); err != nil {
		pw.Close()
		return nil, &Error{Err: fmt.Errorf("worker %d failed to load model: %w", id, err), Cmd: py}
	}
	return pw, nil
}

func (w *PythonWorker) awaitReady() error {
	payload, err := readFrame(w.DataPipe)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return errors.New("empty handshake from worker")
	}
	switch payload[0] {
	case statusReady:
		return nil
	case statusError:
		return decodeError(payload[1:])
	default:
		return fmt.Errorf("unexpected handshake status %d", payload[0])
	}
}

// Communicate sends one length-prefixed frame and reads one back.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.ReadTimeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(w.ReadTimeout)); err != nil {
			return nil, err
		}
	}
	return readFrame(w.DataPipe)
}

// Detect sends the decoded pixels to the model and returns faces in model output order.
func (w *PythonWorker) Detect(img image.Image) ([]types.Face, error) {
	resp, err := w.Communicate(EncodeFrame(img))
	if err != nil {
		return nil, err
	}
	return DecodeFaces(resp)
}

func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		return w.Cmd.Wait()
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(r, respBody)
	return respBody, err
}

// EncodeFrame serializes an image as [width][height][RGB...].
// Sending pixels rather than the file keeps the detector's coordinate space identical to ours
// (EXIF orientation is already applied).
func EncodeFrame(img image.Image) []byte {
	src := imaging.Clone(img)
	width, height := src.Rect.Dx(), src.Rect.Dy()

	buf := make([]byte, 8+width*height*3)
	binary.BigEndian.PutUint32(buf[0:4], uint32(width))
	binary.BigEndian.PutUint32(buf[4:8], uint32(height))

	off := 8
	for y := 0; y < height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+width*4]
		for x := 0; x < width; x++ {
			buf[off] = row[x*4]
			buf[off+1] = row[x*4+1]
			buf[off+2] = row[x*4+2]
			off += 3
		}
	}
	return buf
}

// DecodeFaces parses a worker response payload.
// Protocol: [Status:0] [NumFaces] ([Box] [Score])... or [Status:1] [MsgLen] [Msg]
func DecodeFaces(payload []byte) ([]types.Face, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty response from worker")
	}

	switch payload[0] {
	case statusOK:
	case statusError:
		return nil, decodeError(payload[1:])
	default:
		return nil, fmt.Errorf("unexpected worker status %d", payload[0])
	}

	r := bytes.NewReader(payload[1:])
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("failed to read face count: %w", err)
	}
	if int64(n)*faceRecordSize > int64(r.Len()) {
		return nil, fmt.Errorf("truncated response: %d faces announced, %d bytes left", n, r.Len())
	}

	faces := make([]types.Face, 0, n)
	for i := uint32(0); i < n; i++ {
		var box [4]int32
		var score float32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &score); err != nil {
			return nil, err
		}
		if math.IsNaN(float64(score)) {
			score = 0
		}
		faces = append(faces, types.Face{
			Box:   image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])),
			Score: float64(score),
		})
	}
	return faces, nil
}

// RemoteError is an error frame sent by a live worker; the process can take the next frame.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return "python worker error: " + e.Msg }

func decodeError(b []byte) error {
	r := bytes.NewReader(b)
	var msgLen uint32
	if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
		return fmt.Errorf("malformed worker error: %w", err)
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return fmt.Errorf("malformed worker error: %w", err)
	}
	return &RemoteError{Msg: string(msg)}
}
