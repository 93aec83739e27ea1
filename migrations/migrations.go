// Package migrations embeds the schema of the stores the engine reads and writes.
package migrations

import (
	"context"
	"embed"
	"io/fs"
	"strings"

	"premiummeter/pkg/errors"
)

//go:embed clickhouse/*.sql postgres/*.sql
var embeddedFS embed.FS

// Dialect selects a migration directory
type Dialect string

const (
	ClickHouse Dialect = "clickhouse"
	Postgres   Dialect = "postgres"
)

// Executor runs one statement against a store
type Executor func(ctx context.Context, statement string) error

// Statements returns the statements of a dialect in file order
func Statements(dialect Dialect) ([]string, error) {
	return statementsFrom(embeddedFS, string(dialect))
}

func statementsFrom(fsys fs.FS, dir string) ([]string, error) {
	files, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, errors.Wrapf(err, "list %s migrations", dir)
	}
	if len(files) == 0 {
		return nil, errors.Newf("no migrations for %s", dir)
	}

	var out []string
	for _, name := range files {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out, nil
}

// Apply runs every statement of the dialect. All statements are idempotent.
func Apply(ctx context.Context, dialect Dialect, exec Executor) (int, error) {
	stmts, err := Statements(dialect)
	if err != nil {
		return 0, err
	}
	for i, stmt := range stmts {
		if err := exec(ctx, stmt); err != nil {
			return i, errors.Wrapf(err, "%s migration statement %d", dialect, i+1)
		}
	}
	return len(stmts), nil
}
