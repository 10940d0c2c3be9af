package db

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/solatis/formflow/migrations"
)

/*
 * Schema migrations.
 *
 * Migrations are the embedded migrations/<driver>/*.sql files, applied in
 * filename order, each in its own transaction together with its bookkeeping
 * row in schema_migrations. A recorded migration whose file changed or
 * disappeared stops MigrateUp before anything new runs.
 *
 * applied_at is unix milliseconds, like every other timestamp in the store,
 * so the bookkeeping table is the same DDL on both drivers.
 */

// ErrMigrationDrift reports a recorded migration that no longer matches the
// embedded files.
var ErrMigrationDrift = errors.New("migration drift")

// MigrationStatus is one migration and whether it has been applied.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

type migration struct {
	id       string
	checksum string
	sql      string
}

var migrationSources = map[string]struct {
	fsys fs.FS
	dir  string
}{
	"sqlite3":  {embeddedmigrations.SqliteMigrations, "sqlite"},
	"postgres": {embeddedmigrations.PostgresMigrations, "postgres"},
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	migration_id TEXT PRIMARY KEY,
	checksum TEXT NOT NULL,
	applied_at_ms BIGINT NOT NULL,
	execution_ms BIGINT NOT NULL
)`

// MigrateUp applies every pending migration for the connection's driver.
func MigrateUp(db *sqlx.DB) error {
	pending, applied, err := prepare(db)
	if err != nil {
		return err
	}
	if err := checkDrift(pending, applied); err != nil {
		return err
	}

	for _, m := range pending {
		if _, done := applied[m.id]; done {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration in application order.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	all, applied, err := prepare(db)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(all))
	for _, m := range all {
		if s, ok := applied[m.id]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, MigrationStatus{ID: m.id, Checksum: m.checksum})
	}
	return out, nil
}

// prepare creates the bookkeeping table and returns the embedded migrations
// with the recorded ones.
func prepare(db *sqlx.DB) ([]migration, map[string]MigrationStatus, error) {
	src, ok := migrationSources[db.DriverName()]
	if !ok {
		return nil, nil, fmt.Errorf("no migrations for driver %q", db.DriverName())
	}
	if _, err := db.Exec(createMigrationsTable); err != nil {
		return nil, nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	all, err := readMigrations(src.fsys, src.dir)
	if err != nil {
		return nil, nil, err
	}
	applied, err := recordedMigrations(db)
	if err != nil {
		return nil, nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return all, applied, nil
}

func readMigrations(fsys fs.FS, dir string) ([]migration, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	out := make([]migration, 0, len(files))
	for _, f := range files {
		content, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", f, err)
		}
		sum := sha256.Sum256(content)
		out = append(out, migration{
			id:       path.Base(f),
			checksum: hex.EncodeToString(sum[:]),
			sql:      string(content),
		})
	}
	return out, nil
}

type migrationRow struct {
	ID          string `db:"migration_id"`
	Checksum    string `db:"checksum"`
	AppliedAtMs int64  `db:"applied_at_ms"`
	ExecutionMs int64  `db:"execution_ms"`
}

func recordedMigrations(db *sqlx.DB) (map[string]MigrationStatus, error) {
	var rows []migrationRow
	if err := db.Select(&rows, "SELECT migration_id, checksum, applied_at_ms, execution_ms FROM schema_migrations"); err != nil {
		return nil, err
	}

	out := make(map[string]MigrationStatus, len(rows))
	for _, r := range rows {
		at := time.UnixMilli(r.AppliedAtMs).UTC()
		out[r.ID] = MigrationStatus{
			ID:          r.ID,
			Checksum:    r.Checksum,
			Applied:     true,
			AppliedAt:   &at,
			ExecutionMs: r.ExecutionMs,
		}
	}
	return out, nil
}

func checkDrift(all []migration, applied map[string]MigrationStatus) error {
	embedded := make(map[string]string, len(all))
	for _, m := range all {
		embedded[m.id] = m.checksum
	}
	for id, s := range applied {
		sum, ok := embedded[id]
		switch {
		case !ok:
			return fmt.Errorf("%w: %s is recorded but not embedded", ErrMigrationDrift, id)
		case sum != s.Checksum:
			return fmt.Errorf("%w: checksum mismatch for %s (embedded %s, recorded %s)", ErrMigrationDrift, id, sum, s.Checksum)
		}
	}
	return nil
}

// apply runs m and records it in one transaction.
func apply(db *sqlx.DB, m migration) (err error) {
	start := time.Now()

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.id, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for i, stmt := range splitStatements(m.sql) {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration %s statement %d: %w", m.id, i+1, err)
		}
	}

	_, err = tx.Exec(
		tx.Rebind("INSERT INTO schema_migrations (migration_id, checksum, applied_at_ms, execution_ms) VALUES (?, ?, ?, ?)"),
		m.id, m.checksum, time.Now().UnixMilli(), time.Since(start).Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record migration %s: %w", m.id, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.id, err)
	}
	return nil
}

// splitStatements drops comment lines and splits on semicolons. Running one
// statement per Exec gives per-statement errors and the same path on both
// drivers.
func splitStatements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
