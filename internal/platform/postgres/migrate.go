package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationTableName is the table goose uses to track applied migrations.
const MigrationTableName = "schema_migrations"

// MigrationCommand names a goose operation supported by Migrate.
type MigrationCommand string

// Supported migration commands.
const (
	MigrateUp     MigrationCommand = "up"
	MigrateDown   MigrationCommand = "down"
	MigrateStatus MigrationCommand = "status"
	MigrateReset  MigrationCommand = "reset"
)

// ParseMigrationCommand validates a command name.
func ParseMigrationCommand(raw string) (MigrationCommand, error) {
	switch c := MigrationCommand(strings.ToLower(raw)); c {
	case MigrateUp, MigrateDown, MigrateStatus, MigrateReset:
		return c, nil
	default:
		return "", fmt.Errorf("unknown migration command %q (want up, down, status or reset)", raw)
	}
}

// slogGooseLogger adapts goose's logger to slog. Fatalf logs at error level and
// does not exit; goose returns the error to the caller as well.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate runs cmd against db using the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, cmd MigrationCommand, logger *slog.Logger) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(slogGooseLogger{logger: logger.With("component", "migrations")})
	goose.SetTableName(MigrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	var err error
	switch cmd {
	case MigrateUp:
		err = goose.UpContext(ctx, db, "migrations")
	case MigrateDown:
		err = goose.DownContext(ctx, db, "migrations")
	case MigrateStatus:
		err = goose.StatusContext(ctx, db, "migrations")
	case MigrateReset:
		err = goose.ResetContext(ctx, db, "migrations")
	default:
		return fmt.Errorf("unsupported migration command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", cmd, err)
	}
	return nil
}
