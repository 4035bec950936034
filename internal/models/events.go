package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a domain event type.
type EventKind string

const (
	EventItemReported  EventKind = "item_reported"
	EventItemVerified  EventKind = "item_verified"
	EventItemRecovered EventKind = "item_recovered"
	EventItemDeleted   EventKind = "item_deleted"
	EventItemUpdated   EventKind = "item_updated"
)

// Event is implemented by every domain event.
type Event interface {
	Kind() EventKind
	ReportID() uuid.UUID
	// Recipient is the phone number that should be notified about the event.
	Recipient() string
}

// EventMeta is embedded in every event.
type EventMeta struct {
	EventID    uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Meta returns the metadata; embedding promotes it to every event.
func (m EventMeta) Meta() EventMeta { return m }

// NewEventMeta stamps a new event id and time.
func NewEventMeta(now time.Time) EventMeta {
	return EventMeta{EventID: uuid.New(), OccurredAt: now}
}

// ItemReported is published after a new report is persisted.
type ItemReported struct {
	EventMeta
	ID            uuid.UUID    `json:"report_id"`
	ReporterPhone string       `json:"reporter_phone"`
	Category      ItemCategory `json:"category"`
	Description   string       `json:"description"`
	StolenDate    time.Time    `json:"stolen_date"`
	Location      *Location    `json:"location,omitempty"`
	Brand         string       `json:"brand,omitempty"`
	Model         string       `json:"model,omitempty"`
	SerialNumber  string       `json:"serial_number,omitempty"`
	Color         string       `json:"color,omitempty"`
}

func (e ItemReported) Kind() EventKind     { return EventItemReported }
func (e ItemReported) ReportID() uuid.UUID { return e.ID }
func (e ItemReported) Recipient() string   { return e.ReporterPhone }

// ItemVerified is published when a report receives a police reference.
type ItemVerified struct {
	EventMeta
	ID              uuid.UUID `json:"report_id"`
	PoliceReference string    `json:"police_reference"`
	VerifiedBy      string    `json:"verified_by"`
}

func (e ItemVerified) Kind() EventKind     { return EventItemVerified }
func (e ItemVerified) ReportID() uuid.UUID { return e.ID }
func (e ItemVerified) Recipient() string   { return e.VerifiedBy }

// ItemRecovered is published when the reporter marks an item as recovered.
type ItemRecovered struct {
	EventMeta
	ID               uuid.UUID `json:"report_id"`
	RecoveredBy      string    `json:"recovered_by"`
	RecoveryLocation *Location `json:"recovery_location,omitempty"`
	Notes            string    `json:"notes,omitempty"`
}

func (e ItemRecovered) Kind() EventKind     { return EventItemRecovered }
func (e ItemRecovered) ReportID() uuid.UUID { return e.ID }
func (e ItemRecovered) Recipient() string   { return e.RecoveredBy }

// ItemDeleted is published when a report is soft-deleted.
type ItemDeleted struct {
	EventMeta
	ID        uuid.UUID `json:"report_id"`
	DeletedBy string    `json:"deleted_by"`
	Reason    string    `json:"reason,omitempty"`
}

func (e ItemDeleted) Kind() EventKind     { return EventItemDeleted }
func (e ItemDeleted) ReportID() uuid.UUID { return e.ID }
func (e ItemDeleted) Recipient() string   { return e.DeletedBy }

// ItemUpdated is published when report fields change.
type ItemUpdated struct {
	EventMeta
	ID            uuid.UUID         `json:"report_id"`
	UpdatedBy     string            `json:"updated_by"`
	UpdatedFields map[string]string `json:"updated_fields"`
}

func (e ItemUpdated) Kind() EventKind     { return EventItemUpdated }
func (e ItemUpdated) ReportID() uuid.UUID { return e.ID }
func (e ItemUpdated) Recipient() string   { return e.UpdatedBy }
