package main

import (
	"fmt"
	"os"
	"time"

	"imgshelf/internal/api"
	"imgshelf/internal/format"
	"imgshelf/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeStructured(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeImageList(images []models.Image) error {
	if len(images) == 0 {
		return writePlain("no images\n")
	}
	for _, image := range images {
		if err := writePlain("%s\n", formatImageLine(image)); err != nil {
			return err
		}
	}
	return nil
}

func writeImageDetail(image models.Image) error {
	return writePlain("id: %d\nname: %s\nimage_path: %s\ncreated_at: %s\n",
		image.ID, image.Name, image.ImagePath, formatTime(image.CreatedAt))
}

func writeHealth(health api.HealthResponse) error {
	return writePlain("status: %s\ndatabase: %s\ntimestamp: %s\n",
		health.Status, health.Database, formatTime(health.Timestamp))
}

func formatImageLine(image models.Image) string {
	return fmt.Sprintf("%d  %s  %s  %s", image.ID, formatTime(image.CreatedAt), image.Name, image.ImagePath)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
