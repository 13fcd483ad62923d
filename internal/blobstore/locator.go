package blobstore

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// LocatorPrefix is the leading path segment of every locator.
	LocatorPrefix = "uploads"

	maxExtensionLength = 10
	maxPutAttempts     = 5
)

// NewObjectName returns a unique object name that keeps the hint's image extension.
func NewObjectName(filenameHint string, now time.Time) string {
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), safeExtension(filenameHint))
}

// LocatorFor joins an object name onto the locator prefix.
func LocatorFor(name string) string {
	return LocatorPrefix + "/" + name
}

// ObjectName validates locator and returns its object name.
func ObjectName(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", fmt.Errorf("locator is required")
	}
	rest, ok := strings.CutPrefix(locator, LocatorPrefix+"/")
	if !ok {
		return "", fmt.Errorf("locator must start with %s/", LocatorPrefix)
	}
	if err := ValidateObjectName(rest); err != nil {
		return "", err
	}
	return rest, nil
}

// ValidateObjectName rejects names that could escape the upload namespace.
func ValidateObjectName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("object name is required")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("invalid object name")
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("invalid object name")
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("invalid object name")
	}
	return nil
}

func safeExtension(filenameHint string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(strings.TrimSpace(filenameHint), `\`, "/")))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || len(ext) > maxExtensionLength {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	// Blobs are served with the type their extension implies, so only
	// image extensions survive.
	if !strings.HasPrefix(mime.TypeByExtension("."+ext), "image/") {
		return ""
	}
	return "." + ext
}
