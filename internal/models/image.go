package models

import "time"

// Image is one uploaded image record.
type Image struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ImagePath string    `json:"imagePath"`
	CreatedAt time.Time `json:"createdAt"`
}
