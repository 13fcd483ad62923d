package store

import (
	"context"

	"imgshelf/internal/models"
)

// RecordStore abstracts image record storage backends.
type RecordStore interface {
	Insert(ctx context.Context, name, locator string) (*models.Image, error)
	ListAll(ctx context.Context) ([]models.Image, error)
	GetByID(ctx context.Context, id int64) (*models.Image, error)
	Ping(ctx context.Context) error
}

var _ RecordStore = (*Store)(nil)
