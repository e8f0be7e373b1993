// Package dbmigrate drives schema bootstrap for the relational backing
// stores (Rule Store, Event Store) through golang-migrate instead of a
// hand-rolled CREATE TABLE IF NOT EXISTS exec, so schema changes gain
// golang-migrate's up/down history instead of a single irreversible
// statement run on every Open.
package dbmigrate

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/clustermon/clustermon/internal/apierr"
)

// Apply runs every pending up migration in fsys (rooted at dir) against
// db, tracking applied versions in a table named migrationsTable so two
// stores sharing one physical database (the Rule Store and Event Store
// both live in alarm_db) don't collide over a single schema_migrations
// table.
func Apply(db *sql.DB, fsys embed.FS, dir, migrationsTable string) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return apierr.Wrap(apierr.CodeConfig, "init migration driver", err)
	}
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return apierr.Wrap(apierr.CodeConfig, "load migrations", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return apierr.Wrap(apierr.CodeConfig, "init migrator", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apierr.Wrap(apierr.CodeQuery, "apply migrations", err)
	}
	return nil
}
