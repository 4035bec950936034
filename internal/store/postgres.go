// This file implements the PostgreSQL-backed item, ticket and dedup store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

// kmPerDegreeLatitude bounds the nearby query before exact distance filtering.
const kmPerDegreeLatitude = 111.0

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var (
	_ ItemRepository   = (*PostgresStore)(nil)
	_ TicketRepository = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, item *models.StolenItem) error {
	query := `
		INSERT INTO stolen_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			address = EXCLUDED.address,
			status = EXCLUDED.status,
			verified = EXCLUDED.verified,
			police_reference = EXCLUDED.police_reference,
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			color = EXCLUDED.color,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query, itemArgs(item)...); err != nil {
		slog.Error("PostgresStore Save failed", "error", err, "id", item.ID)
		return models.NewRepositoryError("save item", err)
	}
	slog.Debug("PostgresStore Save succeeded", "id", item.ID, "status", item.Status)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.StolenItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM stolen_items WHERE id = $1`, id.String())
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewRepositoryError("find item", err)
	}
	return item, nil
}

func (s *PostgresStore) FindByReporter(ctx context.Context, phone string) ([]*models.StolenItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM stolen_items WHERE reporter_phone = $1 ORDER BY created_at DESC`, phone)
	if err != nil {
		return nil, models.NewRepositoryError("find items by reporter", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, models.NewRepositoryError("find items by reporter", err)
	}
	return items, nil
}

func (s *PostgresStore) FindByCategory(ctx context.Context, category models.ItemCategory, status models.ItemStatus, limit int) ([]*models.StolenItem, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if category == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+itemColumns+` FROM stolen_items WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
			string(status), limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+itemColumns+` FROM stolen_items WHERE category = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3`,
			string(category), string(status), limit)
	}
	if err != nil {
		return nil, models.NewRepositoryError("find items by category", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, models.NewRepositoryError("find items by category", err)
	}
	return items, nil
}

func (s *PostgresStore) FindNearby(ctx context.Context, loc models.Location, radiusKm float64, category models.ItemCategory) ([]*models.StolenItem, error) {
	dLat := radiusKm / kmPerDegreeLatitude
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM stolen_items
		WHERE status = 'active' AND latitude BETWEEN $1 AND $2 AND longitude IS NOT NULL
		AND ($3::text = '' OR category = $3)`,
		loc.Latitude-dLat, loc.Latitude+dLat, string(category))
	if err != nil {
		return nil, models.NewRepositoryError("find nearby items", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, models.NewRepositoryError("find nearby items", err)
	}
	return filterNearby(items, loc, radiusKm), nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM stolen_items WHERE id = $1`, id.String()); err != nil {
		return models.NewRepositoryError("delete item", err)
	}
	return nil
}

func (s *PostgresStore) SaveTicket(ctx context.Context, t *models.SupportTicket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO support_tickets (`+ticketColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID.String(), t.PhoneNumber, t.Message, nilIfEmpty(t.Email), string(t.Status), t.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveTicket failed", "error", err, "id", t.ID)
		return models.NewRepositoryError("save ticket", err)
	}
	return nil
}

func (s *PostgresStore) FindTicketsByPhone(ctx context.Context, phone string) ([]*models.SupportTicket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM support_tickets WHERE phone_number = $1 ORDER BY created_at DESC`, phone)
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
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
