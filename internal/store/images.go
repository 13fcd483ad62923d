package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"imgshelf/internal/models"
)

const imageColumns = "id, name, image_path, created_at"

// Insert adds one image record and returns it as stored.
func (s *Store) Insert(ctx context.Context, name, locator string) (*models.Image, error) {
	if name == "" {
		name = models.DefaultImageName
	}
	if locator == "" {
		return nil, fmt.Errorf("locator is required")
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO images (name, image_path) VALUES (?, ?) RETURNING `+imageColumns,
		name, locator,
	)
	image, err := scanImage(row)
	if err != nil {
		return nil, err
	}
	if image == nil {
		return nil, fmt.Errorf("insert image: no row returned")
	}
	return image, nil
}

// GetByID returns one image record, or nil when none exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	return scanImage(row)
}

// ListAll returns every image record, newest first.
func (s *Store) ListAll(ctx context.Context) ([]models.Image, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+imageColumns+` FROM images ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []models.Image{}
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		if image == nil {
			continue
		}
		images = append(images, *image)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func scanImage(scanner interface {
	Scan(dest ...any) error
}) (*models.Image, error) {
	image := models.Image{}
	var createdAt string

	err := scanner.Scan(&image.ID, &image.Name, &image.ImagePath, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	image.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("image %d: parse created_at: %w", image.ID, err)
	}
	return &image, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
