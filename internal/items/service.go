// Package items implements the stolen item use cases: reporting, checking, verifying,
// updating, recovering and deleting reports, plus support tickets. Every mutation is
// persisted through the store repositories and announced on the event bus.
package items

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/events"
	"github.com/BTreeMap/IsItStolen/internal/metrics"
	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/store"
	"github.com/BTreeMap/IsItStolen/internal/util"
	"github.com/google/uuid"
)

// Opts holds optional collaborators for Service.
type Opts struct {
	Bus       events.Bus
	Metrics   metrics.Recorder
	Clock     func() time.Time
	Threshold float64
}

// Option configures a Service.
type Option func(*Opts)

// WithEventBus publishes domain events to bus.
func WithEventBus(bus events.Bus) Option {
	return func(o *Opts) {
		o.Bus = bus
	}
}

// WithMetrics records reports and checks into m.
func WithMetrics(m metrics.Recorder) Option {
	return func(o *Opts) {
		o.Metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// WithMatchThreshold sets the minimum similarity for CheckIfStolen matches.
func WithMatchThreshold(threshold float64) Option {
	return func(o *Opts) {
		o.Threshold = threshold
	}
}

// Service runs the item use cases against a repository.
type Service struct {
	items   store.ItemRepository
	tickets store.TicketRepository
	bus     events.Bus
	metrics metrics.Recorder
	now     func() time.Time
	matcher *Matcher
}

// NewService creates a Service. tickets may be nil when support tickets are not stored.
func NewService(items store.ItemRepository, tickets store.TicketRepository, opts ...Option) *Service {
	o := Opts{
		Bus:       events.NopBus{},
		Metrics:   metrics.NoOp{},
		Clock:     time.Now,
		Threshold: DefaultMatchThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		items:   items,
		tickets: tickets,
		bus:     o.Bus,
		metrics: o.Metrics,
		now:     func() time.Time { return o.Clock().UTC() },
		matcher: NewMatcher(o.Threshold),
	}
}

// ReportCommand carries a new stolen item report.
type ReportCommand struct {
	ReporterPhone string
	Category      string
	Description   string
	StolenDate    time.Time // zero means now
	Location      *models.Location
	Brand         string
	Model         string
	SerialNumber  string
	Color         string
}

// ReportStolenItem validates and persists a new report and publishes ItemReported.
func (s *Service) ReportStolenItem(ctx context.Context, cmd ReportCommand) (uuid.UUID, error) {
	slog.Debug("Service.ReportStolenItem", "phone", util.RedactPhone(cmd.ReporterPhone), "category", cmd.Category)

	phone, err := models.NormalizePhoneNumber(cmd.ReporterPhone)
	if err != nil {
		return uuid.Nil, err
	}
	category, err := models.ParseItemCategory(cmd.Category)
	if err != nil {
		return uuid.Nil, err
	}
	if cmd.Location != nil {
		if _, err := models.NewLocation(cmd.Location.Latitude, cmd.Location.Longitude, cmd.Location.Address); err != nil {
			return uuid.Nil, err
		}
	}

	now := s.now()
	stolenDate := cmd.StolenDate
	if stolenDate.IsZero() {
		stolenDate = now
	}
	item, err := models.NewStolenItem(models.NewStolenItemParams{
		ReporterPhone: phone,
		Category:      category,
		Description:   cmd.Description,
		StolenDate:    stolenDate,
		Location:      cmd.Location,
		Brand:         strings.TrimSpace(cmd.Brand),
		Model:         strings.TrimSpace(cmd.Model),
		SerialNumber:  strings.TrimSpace(cmd.SerialNumber),
		Color:         strings.TrimSpace(cmd.Color),
	}, now)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.items.Save(ctx, item); err != nil {
		return uuid.Nil, err
	}
	s.metrics.ItemReported(string(category))

	s.publish(ctx, models.ItemReported{
		EventMeta:     models.NewEventMeta(now),
		ID:            item.ID,
		ReporterPhone: item.ReporterPhone,
		Category:      item.Category,
		Description:   item.Description,
		StolenDate:    item.StolenDate,
		Location:      item.Location,
		Brand:         item.Brand,
		Model:         item.Model,
		SerialNumber:  item.SerialNumber,
		Color:         item.Color,
	})
	slog.Info("Stolen item reported", "report_id", item.ID, "category", category, "phone", util.RedactPhone(phone))
	return item.ID, nil
}

// VerifyCommand attaches a police reference to a report.
type VerifyCommand struct {
	ReportID        string
	PoliceReference string
	VerifiedBy      string
}

// VerifyItem marks the report verified. Only the reporter may verify.
func (s *Service) VerifyItem(ctx context.Context, cmd VerifyCommand) (uuid.UUID, error) {
	ref, err := models.NormalizePoliceReference(cmd.PoliceReference)
	if err != nil {
		return uuid.Nil, err
	}
	item, actor, err := s.loadOwned(ctx, cmd.ReportID, cmd.VerifiedBy)
	if err != nil {
		return uuid.Nil, err
	}
	now := s.now()
	if err := item.Verify(ref, now); err != nil {
		return uuid.Nil, err
	}
	if err := s.items.Save(ctx, item); err != nil {
		return uuid.Nil, err
	}
	s.publish(ctx, models.ItemVerified{
		EventMeta:       models.NewEventMeta(now),
		ID:              item.ID,
		PoliceReference: ref,
		VerifiedBy:      actor,
	})
	slog.Info("Stolen item verified", "report_id", item.ID)
	return item.ID, nil
}

// DeleteCommand soft-deletes a report.
type DeleteCommand struct {
	ReportID  string
	DeletedBy string
	Reason    string
}

// DeleteItem marks the report deleted. Only the reporter may delete.
func (s *Service) DeleteItem(ctx context.Context, cmd DeleteCommand) (uuid.UUID, error) {
	item, actor, err := s.loadOwned(ctx, cmd.ReportID, cmd.DeletedBy)
	if err != nil {
		return uuid.Nil, err
	}
	now := s.now()
	if err := item.MarkDeleted(now); err != nil {
		return uuid.Nil, err
	}
	if err := s.items.Save(ctx, item); err != nil {
		return uuid.Nil, err
	}
	s.publish(ctx, models.ItemDeleted{
		EventMeta: models.NewEventMeta(now),
		ID:        item.ID,
		DeletedBy: actor,
		Reason:    cmd.Reason,
	})
	slog.Info("Stolen item deleted", "report_id", item.ID)
	return item.ID, nil
}

// UpdateCommand changes descriptive fields of a report.
type UpdateCommand struct {
	ReportID  string
	UpdatedBy string
	Update    models.ItemUpdate
}

// UpdateItem applies the non-nil fields of cmd.Update. ItemUpdated is only published
// when at least one field changed.
func (s *Service) UpdateItem(ctx context.Context, cmd UpdateCommand) (uuid.UUID, error) {
	item, actor, err := s.loadOwned(ctx, cmd.ReportID, cmd.UpdatedBy)
	if err != nil {
		return uuid.Nil, err
	}
	now := s.now()
	changed, err := item.Apply(cmd.Update, now)
	if err != nil {
		return uuid.Nil, err
	}
	if len(changed) == 0 {
		return item.ID, nil
	}
	if err := s.items.Save(ctx, item); err != nil {
		return uuid.Nil, err
	}
	s.publish(ctx, models.ItemUpdated{
		EventMeta:     models.NewEventMeta(now),
		ID:            item.ID,
		UpdatedBy:     actor,
		UpdatedFields: changed,
	})
	slog.Info("Stolen item updated", "report_id", item.ID, "fields", len(changed))
	return item.ID, nil
}

// RecoverCommand marks a report recovered.
type RecoverCommand struct {
	ReportID         string
	RecoveredBy      string
	RecoveryLocation *models.Location
	Notes            string
}

// MarkRecovered moves an active report to recovered. Only the reporter may do this.
func (s *Service) MarkRecovered(ctx context.Context, cmd RecoverCommand) (uuid.UUID, error) {
	if loc := cmd.RecoveryLocation; loc != nil {
		if _, err := models.NewLocation(loc.Latitude, loc.Longitude, loc.Address); err != nil {
			return uuid.Nil, err
		}
	}
	item, actor, err := s.loadOwned(ctx, cmd.ReportID, cmd.RecoveredBy)
	if err != nil {
		return uuid.Nil, err
	}
	now := s.now()
	if err := item.MarkRecovered(now); err != nil {
		return uuid.Nil, err
	}
	if err := s.items.Save(ctx, item); err != nil {
		return uuid.Nil, err
	}
	s.publish(ctx, models.ItemRecovered{
		EventMeta:        models.NewEventMeta(now),
		ID:               item.ID,
		RecoveredBy:      actor,
		RecoveryLocation: cmd.RecoveryLocation,
		Notes:            cmd.Notes,
	})
	slog.Info("Stolen item recovered", "report_id", item.ID)
	return item.ID, nil
}

// TicketCommand carries a message left through the contact flow.
type TicketCommand struct {
	PhoneNumber string
	Message     string
	Email       string
}

// CreateSupportTicket validates and stores a support ticket.
func (s *Service) CreateSupportTicket(ctx context.Context, cmd TicketCommand) (*models.SupportTicket, error) {
	ticket, err := models.NewSupportTicket(cmd.PhoneNumber, cmd.Message, cmd.Email, s.now())
	if err != nil {
		return nil, err
	}
	if s.tickets != nil {
		if err := s.tickets.SaveTicket(ctx, ticket); err != nil {
			return nil, err
		}
	}
	slog.Info("Support ticket created", "ticket_id", ticket.ID, "phone", util.RedactPhone(cmd.PhoneNumber))
	return ticket, nil
}

// loadOwned resolves reportID and checks that phone filed it. It returns the item and
// the normalised phone number.
func (s *Service) loadOwned(ctx context.Context, reportID, phone string) (*models.StolenItem, string, error) {
	id, err := uuid.Parse(strings.TrimSpace(reportID))
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid report id %q", models.ErrDomain, reportID)
	}
	actor, err := models.NormalizePhoneNumber(phone)
	if err != nil {
		return nil, "", err
	}
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if item == nil {
		return nil, "", fmt.Errorf("%w: %s", models.ErrItemNotFound, id)
	}
	if !item.IsReportedBy(actor) {
		return nil, "", models.ErrUnauthorized
	}
	return item, actor, nil
}

func (s *Service) publish(ctx context.Context, ev models.Event) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.Error("Failed to publish event", "kind", ev.Kind(), "report_id", ev.ReportID(), "error", err)
	}
}
