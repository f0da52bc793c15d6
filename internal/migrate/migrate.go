// Package migrate applies the goose SQL migrations against Postgres.
package migrate

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Up brings the schema to the newest migration in dir. The connection is
// opened through the pgx stdlib driver and closed before returning; errors
// go back to the caller instead of aborting the process.
func Up(dbURL, dir string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("migrations: open db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("close migration connection", "error", cerr)
		}
	}()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrations: set dialect: %w", err)
	}
	log.Info("applying schema migrations", "dir", dir)
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("migrations: read version: %w", err)
	}
	log.Info("schema up to date", "version", version)
	return nil
}
