package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/memohai/replyd/internal/config"
)

// Migrate commands.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateVersion = "version"
	MigrateForce   = "force"
)

// RunMigrate applies command to the schema using the .sql files at the root of migrations.
func RunMigrate(log *slog.Logger, cfg config.PostgresConfig, migrations fs.FS, command string, args []string) error {
	if log == nil {
		log = slog.Default()
	}
	var force int
	switch command {
	case MigrateUp, MigrateDown, MigrateVersion:
	case MigrateForce:
		if len(args) == 0 {
			return errors.New("force requires a version number argument")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		force = v
	default:
		return fmt.Errorf("unknown migrate command: %s (use: up, down, version, force)", command)
	}

	src, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(cfg))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()
	m.Log = migrateLogger{log: log.With(slog.String("component", "migrate"))}

	switch command {
	case MigrateUp:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
	case MigrateDown:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
	case MigrateForce:
		if err := m.Force(force); err != nil {
			return fmt.Errorf("migrate force: %w", err)
		}
	}
	ver, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate version: %w", err)
	}
	log.Info("schema version", slog.String("command", command), slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))
	return nil
}

// migrateURL selects the pgx/v5 driver registered above.
func migrateURL(cfg config.PostgresConfig) string {
	return "pgx5" + DSN(cfg)[len("postgres"):]
}

type migrateLogger struct {
	log *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...))
}

func (l migrateLogger) Verbose() bool { return false }
