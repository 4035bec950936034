package items

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/flow"
	"github.com/BTreeMap/IsItStolen/internal/models"
)

// Handler names referenced from flow configuration.
const (
	HandlerCheckIfStolen       = "check_if_stolen"
	HandlerReportStolenItem    = "report_stolen_item"
	HandlerCreateSupportTicket = "create_support_ticket"
)

// Flow data keys. These are the step ids used by config/flows.yaml.
const (
	keyCategory    = "category"
	keyDescription = "description"
	keyLocation    = "location"
	keyDate        = "date"
	keyMessage     = "message"
	keyEmail       = "email"
)

var errNoUser = errors.New("flow handler called without a user id")

// AdapterOpts holds the text parsers used to turn free-form answers into fields.
type AdapterOpts struct {
	ExtractBrand func(text string) string
	ParseDate    func(text string) (time.Time, bool)
}

// AdapterOption configures the flow adapters.
type AdapterOption func(*AdapterOpts)

// WithBrandExtractor sets how a brand/model string is pulled from a description.
func WithBrandExtractor(fn func(string) string) AdapterOption {
	return func(o *AdapterOpts) {
		o.ExtractBrand = fn
	}
}

// WithDateParser sets how the stolen date answer is parsed.
func WithDateParser(fn func(string) (time.Time, bool)) AdapterOption {
	return func(o *AdapterOpts) {
		o.ParseDate = fn
	}
}

// RegisterFlowHandlers registers the item use cases under the handler names flow
// configuration refers to.
func RegisterFlowHandlers(reg *flow.Registry, svc *Service, opts ...AdapterOption) error {
	o := AdapterOpts{
		ExtractBrand: func(string) string { return "" },
		ParseDate: func(text string) (time.Time, bool) {
			t, err := time.Parse(time.DateOnly, strings.TrimSpace(text))
			return t, err == nil
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	a := &adapters{svc: svc, opts: o}

	for name, h := range map[string]flow.HandlerFunc{
		HandlerCheckIfStolen:       a.checkIfStolen,
		HandlerReportStolenItem:    a.reportStolenItem,
		HandlerCreateSupportTicket: a.createSupportTicket,
	} {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

type adapters struct {
	svc  *Service
	opts AdapterOpts
}

func (a *adapters) checkIfStolen(ctx context.Context, data map[string]string) (map[string]any, error) {
	description := strings.TrimSpace(data[keyDescription])
	q := CheckQuery{
		Description: description,
		Brand:       a.opts.ExtractBrand(description),
		Category:    data[keyCategory],
		Location:    locationAnswer(data[keyLocation], "skip"),
	}
	res, err := a.svc.CheckIfStolen(ctx, q)
	if err != nil {
		return nil, err
	}

	matches := make([]map[string]any, 0, len(res.Matches))
	for _, m := range res.Matches {
		matches = append(matches, map[string]any{
			"report_id":   m.Item.ID.String(),
			"category":    string(m.Item.Category),
			"description": m.Item.Description,
			"score":       m.Score,
			"reason":      m.Reason,
		})
	}
	return map[string]any{
		"match_count": res.TotalCount,
		"matches":     matches,
	}, nil
}

func (a *adapters) reportStolenItem(ctx context.Context, data map[string]string) (map[string]any, error) {
	phone, ok := flow.UserIDFromContext(ctx)
	if !ok {
		return nil, errNoUser
	}
	description := strings.TrimSpace(data[keyDescription])

	var stolen time.Time
	if answer := strings.TrimSpace(data[keyDate]); answer != "" {
		t, ok := a.opts.ParseDate(answer)
		if !ok {
			return nil, models.ErrInvalidDate
		}
		stolen = t
	}

	id, err := a.svc.ReportStolenItem(ctx, ReportCommand{
		ReporterPhone: phone,
		Category:      data[keyCategory],
		Description:   description,
		StolenDate:    stolen,
		Location:      locationAnswer(data[keyLocation], "unknown"),
		Brand:         a.opts.ExtractBrand(description),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"report_id": id.String(),
		"category":  data[keyCategory],
	}, nil
}

func (a *adapters) createSupportTicket(ctx context.Context, data map[string]string) (map[string]any, error) {
	phone, _ := flow.UserIDFromContext(ctx)
	ticket, err := a.svc.CreateSupportTicket(ctx, TicketCommand{
		PhoneNumber: phone,
		Message:     data[keyMessage],
		Email:       data[keyEmail],
	})
	if err != nil {
		return nil, err
	}
	result := map[string]any{
		"ticket_id": ticket.ID.String(),
		"message":   "Your support ticket has been created successfully!",
		"email":     nil,
	}
	if ticket.Email != "" {
		result["email"] = ticket.Email
	}
	return result, nil
}

// locationAnswer converts a location answer to coordinates. The skip word and any text
// that is not a coordinate pair yield nil.
func locationAnswer(text, skipWord string) *models.Location {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, skipWord) {
		return nil
	}
	loc, ok := models.ParseCoordinates(text)
	if !ok {
		return nil
	}
	loc.Address = text
	return loc
}
