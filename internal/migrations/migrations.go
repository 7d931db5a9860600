package migrations

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// Up applies every embedded migration that has not run yet against the
// database at dsn (a postgres:// URL).
func Up(dsn string) error {
	const op = "migrations.Up"

	m, err := newMigrate(dsn)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Down rolls back every migration. Used by integration tests.
func Down(dsn string) error {
	const op = "migrations.Down"

	m, err := newMigrate(dsn)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func newMigrate(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, err
	}

	return migrate.NewWithSourceInstance("iofs", src, driverURL(dsn))
}

// driverURL rewrites a postgres:// DSN to the scheme registered by the pgx/v5
// migrate driver.
func driverURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
