package loader

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Supported SQL drivers.
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// SQLLoader serves templates stored in a "templates" table with the
// columns name, source, encoding and updated_at (unix milliseconds).
type SQLLoader struct {
	db     *sql.DB
	driver string
}

// OpenSQLLoader opens a database with the sqlite or pgx driver.
func OpenSQLLoader(driver, dsn string) (*SQLLoader, error) {
	if driver != DriverSQLite && driver != DriverPgx {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}
	return NewSQLLoader(db, driver), nil
}

// NewSQLLoader wraps an open database. driver selects the placeholder
// style and migration dialect.
func NewSQLLoader(db *sql.DB, driver string) *SQLLoader {
	return &SQLLoader{db: db, driver: driver}
}

// Migrate creates the templates table.
func (l *SQLLoader) Migrate() error {
	goose.SetBaseFS(migrations)

	dialect := "sqlite"
	if l.driver == DriverPgx {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(l.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// bind rewrites ? placeholders to $n for postgres.
func (l *SQLLoader) bind(query string) string {
	if l.driver != DriverPgx {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (l *SQLLoader) Load(name, encoding string) (*Resource, error) {
	name = CleanName(name)
	var source, stored string
	var updated int64
	row := l.db.QueryRow(l.bind("SELECT source, encoding, updated_at FROM templates WHERE name = ?"), name)
	if err := row.Scan(&source, &stored, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if encoding == "" {
		encoding = stored
	}
	return NewTextResource(name, encoding, time.UnixMilli(updated), source), nil
}

func (l *SQLLoader) List() ([]string, error) {
	rows, err := l.db.Query("SELECT name FROM templates ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Put inserts or replaces a template.
func (l *SQLLoader) Put(ctx context.Context, name, source string) error {
	query := l.bind(`INSERT INTO templates (name, source, encoding, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at`)
	_, err := l.db.ExecContext(ctx, query, CleanName(name), source, DefaultEncoding, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

// Delete removes a template.
func (l *SQLLoader) Delete(ctx context.Context, name string) error {
	_, err := l.db.ExecContext(ctx, l.bind("DELETE FROM templates WHERE name = ?"), CleanName(name))
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Close closes the database.
func (l *SQLLoader) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
