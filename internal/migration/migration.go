package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	logdomain "github.com/smallbiznis/invoicely/internal/generationlog/domain"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&directorydomain.Client{},
		&directorydomain.CatalogItem{},
		&scheduledomain.Schedule{},
		&scheduledomain.ScheduleItem{},
		&logdomain.Entry{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
	}
}

// Apply brings the schema up to date. Postgres runs the versioned SQL
// migrations; other dialects, used for local runs and tests, are migrated
// from the models.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	switch conn.Dialector.Name() {
	case "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	case "sqlite":
		return createMissing(conn)
	default:
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
}

// createMissing creates absent tables and adds absent columns. The sqlite
// migrator re-parses stored DDL when altering existing tables and rejects
// numeric(p,s) column types, so existing columns are never touched.
func createMissing(conn *gorm.DB) error {
	m := conn.Migrator()
	for _, model := range Models() {
		if !m.HasTable(model) {
			if err := m.CreateTable(model); err != nil {
				return fmt.Errorf("create table %T: %w", model, err)
			}
			continue
		}

		stmt := &gorm.Statement{DB: conn}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model %T: %w", model, err)
		}
		for _, column := range stmt.Schema.DBNames {
			if m.HasColumn(model, column) {
				continue
			}
			if err := m.AddColumn(model, column); err != nil {
				return fmt.Errorf("add column %s.%s: %w", stmt.Schema.Table, column, err)
			}
		}
	}
	return nil
}

func openSource() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}

// RunMigrations applies the embedded SQL migrations to a Postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	src, err := openSource()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
