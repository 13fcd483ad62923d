package main

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"imgshelf/internal/blobstore"
	"imgshelf/internal/config"
	"imgshelf/internal/server"
	"imgshelf/internal/store"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "imgshelf.db")
	cfg.Storage.Dir = filepath.Join(dir, "uploads")
	return &cfg
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) error {
	t.Helper()
	t.Setenv(logLevelEnvKey, "error")
	cmd := newRootCmd(cfg)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestMigrateCommand(t *testing.T) {
	cfg := newTestConfig(t)

	if err := runCLI(t, cfg, "migrate", "--inspect"); err != nil {
		t.Fatalf("migrate --inspect: %v", err)
	}
	plan, err := migrationPlan(cfg.DBPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.CurrentVersion != 0 || len(plan.Pending) == 0 {
		t.Fatalf("expected inspect to leave db unmigrated, got %#v", plan)
	}

	if err := runCLI(t, cfg, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	plan, err = migrationPlan(cfg.DBPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Pending) != 0 || plan.CurrentVersion != plan.AvailableVersion {
		t.Fatalf("expected all migrations applied, got %#v", plan)
	}
}

func TestUploadListHealthCommands(t *testing.T) {
	cfg := newTestConfig(t)
	st, err := store.Open(cfg.DBPath, store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	blobs, err := blobstore.NewLocalDir(cfg.Storage.Dir)
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}
	srv, err := server.New(server.Options{Records: st, Blobs: blobs, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	cfg.APIURL = ts.URL

	imagePath := filepath.Join(t.TempDir(), "pixel.png")
	if err := os.WriteFile(imagePath, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR-pixel"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	if err := runCLI(t, cfg, "upload", imagePath, "--name", "Pixel", "-o", "json"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := runCLI(t, cfg, "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := runCLI(t, cfg, "health", "-o", "yaml"); err != nil {
		t.Fatalf("health: %v", err)
	}

	images, err := st.ListAll(t.Context())
	if err != nil {
		t.Fatalf("list store: %v", err)
	}
	if len(images) != 1 || images[0].Name != "Pixel" {
		t.Fatalf("unexpected images %#v", images)
	}

	textPath := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(textPath, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if err := runCLI(t, cfg, "upload", textPath); err == nil {
		t.Fatal("expected non-image upload to fail")
	}
}

func TestRootRejectsUnknownOutput(t *testing.T) {
	cfg := newTestConfig(t)
	if err := runCLI(t, cfg, "migrate", "--inspect", "-o", "xml"); err == nil {
		t.Fatal("expected unknown output format error")
	}
}
