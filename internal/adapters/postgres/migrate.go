package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every up migration in order. Migrations are idempotent.
func Migrate(ctx context.Context, db *DB) error {
	return run(ctx, db, ".up.sql", false)
}

// MigrateDown applies every down migration in reverse order.
func MigrateDown(ctx context.Context, db *DB) error {
	return run(ctx, db, ".down.sql", true)
}

func run(ctx context.Context, db *DB, suffix string, reverse bool) error {
	files, err := fs.Glob(migrations, "migrations/*"+suffix)
	if err != nil {
		return err
	}
	sort.Strings(files)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	for _, f := range files {
		data, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := db.Pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		slog.Info("migration applied", "file", strings.TrimPrefix(f, "migrations/"))
	}
	return nil
}
