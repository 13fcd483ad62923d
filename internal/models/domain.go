package models

import (
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

const (
	DefaultImageName = "Untitled"
	MaxNameLength    = 255

	// ImageMediaTypePrefix is the media type family accepted for uploads.
	ImageMediaTypePrefix = "image/"
)

// ParseImageName trims raw and applies the default name when it is empty.
func ParseImageName(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return DefaultImageName, nil
	}
	if utf8.RuneCountInString(value) > MaxNameLength {
		return "", fmt.Errorf("name must be at most %d characters", MaxNameLength)
	}
	return value, nil
}

// ParseImageMediaType normalizes raw and reports whether it belongs to the image family.
func ParseImageMediaType(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", false
	}
	parsed = strings.ToLower(strings.TrimSpace(parsed))
	return parsed, IsImageMediaType(parsed)
}

func IsImageMediaType(mediaType string) bool {
	return strings.HasPrefix(mediaType, ImageMediaTypePrefix) && len(mediaType) > len(ImageMediaTypePrefix)
}
