package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/IsItStolen/internal/items"
	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/util"
)

const unknownWord = "unknown"

// handleReport drives the hard-coded report flow: category, description, location and
// date, then the report is filed and the conversation completes.
func (r *Router) handleReport(ctx context.Context, conv models.ConversationContext, input string) (Response, error) {
	switch conv.State {
	case models.StateReportingCategory:
		category, ok := r.parser.ParseCategory(input)
		if !ok {
			return Response{Reply: r.responses.InvalidCategory(), State: conv.State}, nil
		}
		next, err := r.sm.TransitionWithData(ctx, conv, models.StateReportingDescription, map[string]any{
			dataCategory: string(category),
		})
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.ReportCategoryConfirm(category), State: next.State}, nil

	case models.StateReportingDescription:
		if len([]rune(input)) < models.MinDescriptionLength {
			return Response{Reply: r.responses.DescriptionTooShort(), State: conv.State}, nil
		}
		next, err := r.sm.TransitionWithData(ctx, conv, models.StateReportingLocation, map[string]any{
			dataDescription: input,
			dataBrandModel:  r.parser.ExtractBrandModel(input),
		})
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.ReportLocation(), State: next.State}, nil

	case models.StateReportingLocation:
		var location any
		if !strings.EqualFold(input, unknownWord) {
			location = r.parser.ParseLocationText(input)
		}
		next, err := r.sm.TransitionWithData(ctx, conv, models.StateReportingDate, map[string]any{
			dataLocation: location,
		})
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.ReportDatePrompt(), State: next.State}, nil
	}

	stolen, ok := r.parser.ParseDate(input)
	if !ok {
		return Response{Reply: r.responses.InvalidDate(), State: conv.State}, nil
	}
	done, err := r.sm.Complete(ctx, conv)
	if err != nil {
		return Response{}, err
	}
	if r.items == nil {
		return Response{Reply: r.responses.Unavailable(), State: done.State}, nil
	}

	id, err := r.items.ReportStolenItem(ctx, items.ReportCommand{
		ReporterPhone: conv.PhoneNumber,
		Category:      conv.GetString(dataCategory),
		Description:   conv.GetString(dataDescription),
		StolenDate:    stolen,
		Location:      coordinatesOf(conv.GetString(dataLocation)),
		Brand:         conv.GetString(dataBrandModel),
	})
	if err != nil {
		slog.Error("Router report failed", "phone", util.RedactPhone(conv.PhoneNumber), "error", err)
		r.metrics.HandlerError(ErrorKind(err))
		return Response{Reply: r.responses.Error(r.errHandler.HandleError(err)), State: done.State}, nil
	}
	slog.Info("Router filed report", "phone", util.RedactPhone(conv.PhoneNumber), "report_id", id)
	return Response{Reply: r.responses.ReportComplete(), State: done.State}, nil
}
