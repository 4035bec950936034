// This file implements the SQLite-backed item, ticket and dedup store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var (
	_ ItemRepository   = (*SQLiteStore)(nil)
	_ TicketRepository = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, item *models.StolenItem) error {
	query := `
		INSERT INTO stolen_items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description = excluded.description,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			address = excluded.address,
			status = excluded.status,
			verified = excluded.verified,
			police_reference = excluded.police_reference,
			brand = excluded.brand,
			model = excluded.model,
			serial_number = excluded.serial_number,
			color = excluded.color,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, itemArgs(item)...); err != nil {
		slog.Error("SQLiteStore Save failed", "error", err, "id", item.ID)
		return models.NewRepositoryError("save item", err)
	}
	slog.Debug("SQLiteStore Save succeeded", "id", item.ID, "status", item.Status)
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id uuid.UUID) (*models.StolenItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM stolen_items WHERE id = ?`, id.String())
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewRepositoryError("find item", err)
	}
	return item, nil
}

func (s *SQLiteStore) FindByReporter(ctx context.Context, phone string) ([]*models.StolenItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM stolen_items WHERE reporter_phone = ? ORDER BY created_at DESC`, phone)
	if err != nil {
		return nil, models.NewRepositoryError("find items by reporter", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, models.NewRepositoryError("find items by reporter", err)
	}
	return items, nil
}

func (s *SQLiteStore) FindByCategory(ctx context.Context, category models.ItemCategory, status models.ItemStatus, limit int) ([]*models.StolenItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM stolen_items
		WHERE (? = '' OR category = ?) AND status = ?
		ORDER BY created_at DESC LIMIT ?`,
		string(category), string(category), string(status), limit)
	if err != nil {
		return nil, models.NewRepositoryError("find items by category", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, models.NewRepositoryError("find items by category", err)
	}
	return items, nil
}

func (s *SQLiteStore) FindNearby(ctx context.Context, loc models.Location, radiusKm float64, category models.ItemCategory) ([]*models.StolenItem, error) {
	dLat := radiusKm / kmPerDegreeLatitude
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM stolen_items
		WHERE status = 'active' AND latitude BETWEEN ? AND ? AND longitude IS NOT NULL
		AND (? = '' OR category = ?)`,
		loc.Latitude-dLat, loc.Latitude+dLat, string(category), string(category))
	if err != nil {
		return nil, models.NewRepositoryError("find nearby items", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, models.NewRepositoryError("find nearby items", err)
	}
	return filterNearby(items, loc, radiusKm), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM stolen_items WHERE id = ?`, id.String()); err != nil {
		return models.NewRepositoryError("delete item", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTicket(ctx context.Context, t *models.SupportTicket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO support_tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.PhoneNumber, t.Message, nilIfEmpty(t.Email), string(t.Status), t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveTicket failed", "error", err, "id", t.ID)
		return models.NewRepositoryError("save ticket", err)
	}
	return nil
}

func (s *SQLiteStore) FindTicketsByPhone(ctx context.Context, phone string) ([]*models.SupportTicket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM support_tickets WHERE phone_number = ? ORDER BY created_at DESC`, phone)
	if err != nil {
		return nil, models.NewRepositoryError("find tickets", err)
	}
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, models.NewRepositoryError("find tickets", err)
	}
	return tickets, nil
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
