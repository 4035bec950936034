package store

import (
	"cmp"
	"database/sql"
	"fmt"
	"slices"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/google/uuid"
)

const itemColumns = `id, reporter_phone, category, description, stolen_date, latitude, longitude, address,
	status, verified, police_reference, brand, model, serial_number, color, created_at, updated_at`

const ticketColumns = `id, phone_number, message, email, status, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// itemArgs returns the values for itemColumns, in order.
func itemArgs(item *models.StolenItem) []any {
	var lat, lon, addr any
	if item.Location != nil {
		lat, lon, addr = item.Location.Latitude, item.Location.Longitude, nilIfEmpty(item.Location.Address)
	}
	return []any{
		item.ID.String(), item.ReporterPhone, string(item.Category), item.Description, item.StolenDate,
		lat, lon, addr,
		string(item.Status), item.Verified, nilIfEmpty(item.PoliceReference),
		nilIfEmpty(item.Brand), nilIfEmpty(item.Model), nilIfEmpty(item.SerialNumber), nilIfEmpty(item.Color),
		item.CreatedAt, item.UpdatedAt,
	}
}

// scanItem scans one row selected with itemColumns.
func scanItem(row rowScanner) (*models.StolenItem, error) {
	var (
		item                 models.StolenItem
		id, category, status string
		lat, lon             sql.NullFloat64
		addr, policeRef      sql.NullString
		brand, model, serial sql.NullString
		color                sql.NullString
	)
	err := row.Scan(
		&id, &item.ReporterPhone, &category, &item.Description, &item.StolenDate,
		&lat, &lon, &addr,
		&status, &item.Verified, &policeRef,
		&brand, &model, &serial, &color,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if item.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid item id %q: %w", id, err)
	}
	item.Category = models.ItemCategory(category)
	item.Status = models.ItemStatus(status)
	if lat.Valid && lon.Valid {
		item.Location = &models.Location{Latitude: lat.Float64, Longitude: lon.Float64, Address: addr.String}
	}
	item.PoliceReference = policeRef.String
	item.Brand = brand.String
	item.Model = model.String
	item.SerialNumber = serial.String
	item.Color = color.String
	return &item, nil
}

// scanItems drains rows into a slice.
func scanItems(rows *sql.Rows) ([]*models.StolenItem, error) {
	defer rows.Close()
	var items []*models.StolenItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item failed: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows failed: %w", err)
	}
	return items, nil
}

func scanTicket(row rowScanner) (*models.SupportTicket, error) {
	var (
		t          models.SupportTicket
		id, status string
		email      sql.NullString
	)
	if err := row.Scan(&id, &t.PhoneNumber, &t.Message, &email, &status, &t.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid ticket id %q: %w", id, err)
	}
	t.ID = parsed
	t.Email = email.String
	t.Status = models.TicketStatus(status)
	return &t, nil
}

func scanTickets(rows *sql.Rows) ([]*models.SupportTicket, error) {
	defer rows.Close()
	var tickets []*models.SupportTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket failed: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket rows failed: %w", err)
	}
	return tickets, nil
}

// filterNearby keeps items within radiusKm of loc and orders them nearest first.
func filterNearby(items []*models.StolenItem, loc models.Location, radiusKm float64) []*models.StolenItem {
	type ranked struct {
		item *models.StolenItem
		dist float64
	}
	var within []ranked
	for _, item := range items {
		if item.Location == nil {
			continue
		}
		if d := loc.DistanceKm(*item.Location); d <= radiusKm {
			within = append(within, ranked{item, d})
		}
	}
	slices.SortStableFunc(within, func(a, b ranked) int {
		return cmp.Compare(a.dist, b.dist)
	})
	out := make([]*models.StolenItem, len(within))
	for i, r := range within {
		out[i] = r.item
	}
	return out
}
