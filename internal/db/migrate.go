package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ensureDatabase creates the target database through the maintenance
// "postgres" database when it does not exist yet.
func ensureDatabase(ctx context.Context, databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return errors.New("database name is empty in url")
	}
	u.Path = "/postgres"
	admin, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer admin.Close()

	var exists bool
	err = admin.QueryRowContext(ctx, `SELECT true FROM pg_database WHERE datname = $1`, name).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	log.Info().Str("database", name).Msg("database created")
	return nil
}

func openMigrator(ctx context.Context, databaseURL string, create bool) (*sql.DB, error) {
	if create {
		if err := ensureDatabase(ctx, databaseURL); err != nil {
			return nil, fmt.Errorf("ensure database: %w", err)
		}
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return conn, nil
}

// MigrateUp applies every pending embedded migration.
func MigrateUp(ctx context.Context, databaseURL string) error {
	conn, err := openMigrator(ctx, databaseURL, true)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := goose.UpContext(ctx, conn, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateStatus logs the applied state of each migration.
func MigrateStatus(ctx context.Context, databaseURL string) error {
	conn, err := openMigrator(ctx, databaseURL, false)
	if err != nil {
		return err
	}
	defer conn.Close()
	return goose.StatusContext(ctx, conn, "migrations")
}
