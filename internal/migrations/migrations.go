// Package migrations applies the relational schema internal/coldstore.Postgres's
// prepared statements assume, using golang-migrate against the embedded SQL
// files in sql/. The teacher imports golang-migrate/migrate/v4 but never
// calls it from any reachable code path; this wires it to an actual startup
// step instead of carrying it as a dead dependency.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Up applies every pending migration against the database addressed by url
// (a postgres:// connection string, not lib/pq's libpq keyword DSN).
func Up(url string) error {
	src, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
