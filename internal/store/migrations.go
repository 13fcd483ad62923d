package store

import (
	"database/sql"
	"fmt"
	"slices"
)

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

type schemaStep struct {
	version int
	summary string
	ddl     string
}

// schemaSteps must keep strictly increasing versions; a version, once
// released, is never edited in place.
var schemaSteps = []schemaStep{
	{
		version: 1,
		summary: "initial schema: images table",
		ddl: `CREATE TABLE IF NOT EXISTS images (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL DEFAULT 'Untitled',
  image_path TEXT NOT NULL UNIQUE,
  created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`,
	},
	{
		version: 2,
		summary: "listing index on created_at",
		ddl:     `CREATE INDEX IF NOT EXISTS idx_images_created_at_desc ON images(created_at DESC, id DESC)`,
	},
}

const (
	historyDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
)`
	recordStepSQL = `INSERT OR IGNORE INTO schema_migrations (version, applied_at)
VALUES (?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`

	// Databases created before version tracking already carry this schema.
	legacyBaseline = 1
)

// schemaState is what the database says about itself before any change.
type schemaState struct {
	legacy  bool
	version int
}

// effective is the version the schema is known to be at, counting an
// untracked legacy database as the baseline.
func (s schemaState) effective() int {
	if s.legacy && s.version < legacyBaseline {
		return legacyBaseline
	}
	return s.version
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n); err != nil {
		return false, fmt.Errorf("look up table %s: %w", name, err)
	}
	return n > 0, nil
}

// currentVersion returns the highest recorded version, or 0 if none.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// detectPreMigrationDB reports whether the images table is present while
// the history table is missing or empty.
func detectPreMigrationDB(db *sql.DB) (bool, error) {
	hasImages, err := tableExists(db, "images")
	if err != nil || !hasImages {
		return false, err
	}
	hasHistory, err := tableExists(db, "schema_migrations")
	if err != nil {
		return false, err
	}
	if !hasHistory {
		return true, nil
	}
	version, err := currentVersion(db)
	if err != nil {
		return false, err
	}
	return version == 0, nil
}

// inspectSchema must run before the history table is created, otherwise a
// legacy database looks like a fresh one.
func inspectSchema(db *sql.DB) (schemaState, error) {
	legacy, err := detectPreMigrationDB(db)
	if err != nil {
		return schemaState{}, fmt.Errorf("detect pre-migration db: %w", err)
	}
	if _, err := db.Exec(historyDDL); err != nil {
		return schemaState{}, fmt.Errorf("create migrations table: %w", err)
	}
	version, err := currentVersion(db)
	if err != nil {
		return schemaState{}, fmt.Errorf("read schema version: %w", err)
	}
	return schemaState{legacy: legacy, version: version}, nil
}

func stepsAfter(version int) []schemaStep {
	sorted := slices.Clone(schemaSteps)
	slices.SortFunc(sorted, func(a, b schemaStep) int { return a.version - b.version })
	idx := slices.IndexFunc(sorted, func(s schemaStep) bool { return s.version > version })
	if idx < 0 {
		return nil
	}
	return sorted[idx:]
}

func latestVersion() int {
	latest := 0
	for _, s := range schemaSteps {
		latest = max(latest, s.version)
	}
	return latest
}

func applyStep(db *sql.DB, step schemaStep) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", step.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(step.ddl); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", step.version, step.summary, err)
	}
	if _, err = tx.Exec(recordStepSQL, step.version); err != nil {
		return fmt.Errorf("record migration %d: %w", step.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", step.version, err)
	}
	return nil
}

// runMigrations brings the schema up to latestVersion, one transaction per step.
func runMigrations(db *sql.DB) error {
	state, err := inspectSchema(db)
	if err != nil {
		return err
	}
	if state.legacy {
		if _, err := db.Exec(recordStepSQL, legacyBaseline); err != nil {
			return fmt.Errorf("stamp pre-migration db: %w", err)
		}
	}
	for _, step := range stepsAfter(state.effective()) {
		if err := applyStep(db, step); err != nil {
			return err
		}
	}
	return nil
}

// MigrationPlan reports what runMigrations would do. It creates the empty
// history table but applies no schema changes.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	state, err := inspectSchema(db)
	if err != nil {
		return nil, err
	}
	status := &MigrationStatus{
		CurrentVersion:   state.effective(),
		AvailableVersion: latestVersion(),
	}
	for _, step := range stepsAfter(status.CurrentVersion) {
		status.Pending = append(status.Pending, MigrationInfo{Version: step.version, Description: step.summary})
	}
	return status, nil
}
