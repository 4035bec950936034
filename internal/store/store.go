// Package store provides storage backends for IsItStolen.
//
// Conversation contexts, rate-limit counters and inbound de-duplication markers live in
// Redis (with in-memory fallbacks for tests and single-process use). Stolen item reports
// and support tickets live in PostgreSQL or SQLite, selected by DSN.
package store

import (
	"context"
	"strings"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/google/uuid"
)

// Opts holds configuration options for SQL-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for SQL-backed stores.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	// key=value form, e.g. "host=localhost dbname=isitstolen sslmode=disable"
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// ItemRepository persists stolen item reports.
type ItemRepository interface {
	// Save inserts the item or replaces the stored copy with the same id.
	Save(ctx context.Context, item *models.StolenItem) error
	// FindByID returns nil, nil when no item has the id.
	FindByID(ctx context.Context, id uuid.UUID) (*models.StolenItem, error)
	// FindByReporter returns every report filed by phone, newest first.
	FindByReporter(ctx context.Context, phone string) ([]*models.StolenItem, error)
	// FindByCategory returns reports in category with the given status, newest first.
	// An empty category matches every category.
	FindByCategory(ctx context.Context, category models.ItemCategory, status models.ItemStatus, limit int) ([]*models.StolenItem, error)
	// FindNearby returns active reports within radiusKm of loc, nearest first.
	// An empty category matches every category.
	FindNearby(ctx context.Context, loc models.Location, radiusKm float64, category models.ItemCategory) ([]*models.StolenItem, error)
	// Delete removes the item permanently.
	Delete(ctx context.Context, id uuid.UUID) error
}

// TicketRepository persists support tickets.
type TicketRepository interface {
	SaveTicket(ctx context.Context, t *models.SupportTicket) error
	FindTicketsByPhone(ctx context.Context, phone string) ([]*models.SupportTicket, error)
}
