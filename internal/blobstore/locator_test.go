package blobstore

import (
	"strings"
	"testing"
	"time"
)

func TestNewObjectNameKeepsSafeExtension(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	tests := []struct {
		hint string
		ext  string
	}{
		{hint: "cat.jpg", ext: ".jpg"},
		{hint: "CAT.JPEG", ext: ".jpeg"},
		{hint: `C:\Users\me\shot.webp`, ext: ".webp"},
		{hint: "archive.tar.gz", ext: ""},
		{hint: "evil.html", ext: ""},
		{hint: "page.HTM", ext: ""},
		{hint: "icon.png", ext: ".png"},
		{hint: "noext", ext: ""},
		{hint: "weird.p n g", ext: ""},
		{hint: "long.abcdefghijk", ext: ""},
		{hint: "", ext: ""},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			name := NewObjectName(tt.hint, now)
			if !strings.HasPrefix(name, "1700000000000-") {
				t.Fatalf("expected millisecond prefix, got %q", name)
			}
			if tt.ext == "" {
				if strings.Contains(name, ".") {
					t.Fatalf("expected no extension, got %q", name)
				}
				return
			}
			if !strings.HasSuffix(name, tt.ext) {
				t.Fatalf("expected suffix %q, got %q", tt.ext, name)
			}
			if err := ValidateObjectName(name); err != nil {
				t.Fatalf("generated name should validate: %v", err)
			}
		})
	}
}

func TestObjectName(t *testing.T) {
	name, err := ObjectName("uploads/123-abc.png")
	if err != nil {
		t.Fatalf("object name: %v", err)
	}
	if name != "123-abc.png" {
		t.Fatalf("expected 123-abc.png, got %q", name)
	}
	if LocatorFor(name) != "uploads/123-abc.png" {
		t.Fatalf("expected round trip locator, got %q", LocatorFor(name))
	}
}
