package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const memoryDSN = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	address    TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	wallet     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
)`

// userRow mirrors the users table; created_at is stored as unix seconds.
type userRow struct {
	Address   string `db:"address"`
	Name      string `db:"name"`
	Wallet    string `db:"wallet"`
	CreatedAt int64  `db:"created_at"`
}

func (r userRow) info() Info {
	return Info{
		Address:   r.Address,
		Name:      r.Name,
		Wallet:    r.Wallet,
		CreatedAt: time.Unix(r.CreatedAt, 0).UTC(),
	}
}

// SQLiteDirectory stores user profiles in a SQLite database.
type SQLiteDirectory struct {
	db *sqlx.DB
}

// OpenSQLite opens or creates the users database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDirectory, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("users.path is required for the sqlite backend")
	}

	if path != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create users database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open users database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping users database: %w", err)
	}

	if err := configure(ctx, db, path); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply users schema: %w", err)
	}

	return &SQLiteDirectory{db: db}, nil
}

func configure(ctx context.Context, db *sqlx.DB, path string) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if path != memoryDSN {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute pragma %q: %w", pragma, err)
		}
	}

	return nil
}

func (d *SQLiteDirectory) Lookup(ctx context.Context, address string) (Info, bool, error) {
	var row userRow
	err := d.db.GetContext(ctx, &row,
		`SELECT address, name, wallet, created_at FROM users WHERE address = ?`,
		normalizeAddress(address),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("query user %q: %w", address, err)
	}

	return row.info(), true, nil
}

func (d *SQLiteDirectory) Save(ctx context.Context, info Info) error {
	address := normalizeAddress(info.Address)
	if address == "" {
		return ErrAddressRequired
	}

	createdAt := info.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO users (address, name, wallet, created_at)
		VALUES (:address, :name, :wallet, :created_at)
		ON CONFLICT(address) DO UPDATE SET name = excluded.name, wallet = excluded.wallet`,
		userRow{
			Address:   address,
			Name:      strings.TrimSpace(info.Name),
			Wallet:    strings.TrimSpace(info.Wallet),
			CreatedAt: createdAt.Unix(),
		},
	)
	if err != nil {
		return fmt.Errorf("save user %q: %w", address, err)
	}

	return nil
}

func (d *SQLiteDirectory) List(ctx context.Context) ([]Info, error) {
	var rows []userRow
	if err := d.db.SelectContext(ctx, &rows, `SELECT address, name, wallet, created_at FROM users ORDER BY address`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]Info, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.info())
	}
	return out, nil
}

// Close releases the database handle.
func (d *SQLiteDirectory) Close() error {
	return d.db.Close()
}
