package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries runs the named statements in queries/*.sql. Statements use ?
// placeholders and are rebound once per name for the connected driver.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB

	mu    sync.RWMutex
	bound map[string]string
}

// LoadQueries parses every embedded query file. Each file is parsed on its
// own first so a syntax problem names the file it came from.
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	files, err := fs.Glob(queriesFS, "queries/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list query files: %w", err)
	}
	sort.Strings(files)

	var all []byte
	for _, name := range files {
		content, err := queriesFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := dotsql.LoadFromString(string(content)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		all = append(all, content...)
		all = append(all, '\n')
	}

	dot, err := dotsql.LoadFromString(string(all))
	if err != nil {
		return nil, fmt.Errorf("parse queries: %w", err)
	}
	return &Queries{dot: dot, db: db, bound: make(map[string]string)}, nil
}

func (q *Queries) query(name string) (string, error) {
	q.mu.RLock()
	s, ok := q.bound[name]
	q.mu.RUnlock()
	if ok {
		return s, nil
	}

	raw, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("unknown query %q: %w", name, err)
	}
	s = q.db.Rebind(raw)

	q.mu.Lock()
	q.bound[name] = s
	q.mu.Unlock()
	return s, nil
}

// Exec runs a named statement.
func (q *Queries) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	s, err := q.query(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, s, args...)
}

// Get scans the single row returned by a named query into dest.
func (q *Queries) Get(ctx context.Context, name string, dest any, args ...any) error {
	s, err := q.query(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, s, args...)
}

// Select scans every row of a named query into the dest slice.
func (q *Queries) Select(ctx context.Context, name string, dest any, args ...any) error {
	s, err := q.query(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, s, args...)
}
