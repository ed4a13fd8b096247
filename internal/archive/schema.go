package archive

import (
	"database/sql"

	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
)

const (
	SchemaVersion = 1

	// SQLite stores NaN as NULL, so x and y are nullable and NULL reads
	// back as NaN
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS reports (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       program     TEXT NOT NULL,
	       analysis    TEXT NOT NULL,
	       name        TEXT NOT NULL,
	       kind        TEXT NOT NULL,
	       created_at  TEXT NOT NULL,
	       UNIQUE (program, analysis, name)
	   );
	   CREATE TABLE IF NOT EXISTS points (
	       report_id   INTEGER NOT NULL REFERENCES reports(id),
	       seq         INTEGER NOT NULL CHECK (seq >= 0),
	       x           REAL,
	       y           REAL,
	       recorded_at INTEGER NOT NULL,
	       PRIMARY KEY (report_id, seq)
	   );`

	insertReportSQL = `
    INSERT OR IGNORE INTO reports (program, analysis, name, kind, created_at)
    VALUES (?, ?, ?, ?, datetime('now'))`

	selectReportIDSQL = `
    SELECT id FROM reports
    WHERE program = ? AND analysis = ? AND name = ?`

	// Re-polling an overlapping range must not duplicate points
	insertPointSQL = `
    INSERT OR IGNORE INTO points (report_id, seq, x, y, recorded_at)
    VALUES (?, ?, ?, ?, ?)`

	selectPointsSQL = `
    SELECT p.seq, p.x, p.y, p.recorded_at
    FROM points p
    JOIN reports r ON r.id = p.report_id
    WHERE r.program = ? AND r.analysis = ? AND r.name = ?
    ORDER BY p.seq`
)

var managedTables = []string{"points", "reports", "schema_versions"}

// InitSchema creates the tables and records the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating archive schema...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().Int("version", SchemaVersion).Msg("Archive schema initialized")

	return nil
}

// GetSchemaVersion returns 0 for a database without a schema
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
