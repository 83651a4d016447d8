package store

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/andresmejia3/facecrop/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store records extraction runs and the crops they produced in PostgreSQL.
type Store struct {
	conn *pgx.Conn
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	InputDir  string
	OutputDir string
	Padding   float64
	Mode      string
	Detector  string
}

// Run is a recorded extraction run.
type Run struct {
	ID         int64
	RunInfo
	StartedAt  time.Time
	FinishedAt *time.Time
	Files      int
	Saved      int
	Skipped    int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS extraction_runs (
			id BIGSERIAL PRIMARY KEY,
			input_dir TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			padding DOUBLE PRECISION NOT NULL,
			mode TEXT NOT NULL,
			detector TEXT NOT NULL,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			files INT NOT NULL DEFAULT 0,
			saved INT NOT NULL DEFAULT 0,
			skipped INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS face_crops (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT NOT NULL REFERENCES extraction_runs(id) ON DELETE CASCADE,
			image_id TEXT NOT NULL,
			source_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			face_index INT NOT NULL,
			face_box INT[] NOT NULL,
			crop_box INT[] NOT NULL,
			score DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS face_crops_image_id_idx ON face_crops (image_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// StartRun registers a new run and returns its ID.
func (s *Store) StartRun(ctx context.Context, info RunInfo) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO extraction_runs (input_dir, output_dir, padding, mode, detector)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, info.InputDir, info.OutputDir, info.Padding, info.Mode, info.Detector).Scan(&id)
	return id, err
}

// RecordCrop saves one written crop under its run.
func (s *Store) RecordCrop(ctx context.Context, runID int64, c types.Crop) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO face_crops (run_id, image_id, source_path, output_path, face_index, face_box, crop_box, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, runID, c.ImageID, c.SourcePath, c.OutputPath, c.Index, rectToArray(c.Face), rectToArray(c.Region), c.Score)
	return err
}

// FinishRun stamps the run with its final counts.
func (s *Store) FinishRun(ctx context.Context, runID int64, files, saved, skipped int) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE extraction_runs SET finished_at = NOW(), files = $2, saved = $3, skipped = $4 WHERE id = $1
	`, runID, files, saved, skipped)
	return err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, input_dir, output_dir, padding, mode, detector, started_at, finished_at, files, saved, skipped
		FROM extraction_runs ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.InputDir, &r.OutputDir, &r.Padding, &r.Mode, &r.Detector,
			&r.StartedAt, &r.FinishedAt, &r.Files, &r.Saved, &r.Skipped); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CropsForImage returns every recorded crop of the image with the given ID, oldest first.
func (s *Store) CropsForImage(ctx context.Context, imageID string) ([]types.Crop, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT image_id, source_path, output_path, face_index, face_box, crop_box, score
		FROM face_crops WHERE image_id = $1 ORDER BY id ASC
	`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crops []types.Crop
	for rows.Next() {
		var c types.Crop
		var faceBox, cropBox []int32
		if err := rows.Scan(&c.ImageID, &c.SourcePath, &c.OutputPath, &c.Index, &faceBox, &cropBox, &c.Score); err != nil {
			return nil, err
		}
		c.Face = arrayToRect(faceBox)
		c.Region = arrayToRect(cropBox)
		crops = append(crops, c)
	}
	return crops, rows.Err()
}

// Reset drops all application tables to clear the recorded history.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS face_crops CASCADE;
		DROP TABLE IF EXISTS extraction_runs CASCADE;
	`)
	return err
}

// rectToArray stores a rectangle as INT[] {x1, y1, x2, y2}
func rectToArray(r image.Rectangle) []int32 {
	return []int32{int32(r.Min.X), int32(r.Min.Y), int32(r.Max.X), int32(r.Max.Y)}
}

func arrayToRect(a []int32) image.Rectangle {
	if len(a) != 4 {
		return image.Rectangle{}
	}
	return image.Rectangle{Min: image.Pt(int(a[0]), int(a[1])), Max: image.Pt(int(a[2]), int(a[3]))}
}
