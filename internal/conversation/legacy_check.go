package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/IsItStolen/internal/items"
	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/util"
)

const skipWord = "skip"

// handleCheck drives the hard-coded check flow: category, description, location, then
// the search runs and the conversation completes.
func (r *Router) handleCheck(ctx context.Context, conv models.ConversationContext, input string) (Response, error) {
	switch conv.State {
	case models.StateCheckingCategory:
		category, ok := r.parser.ParseCategory(input)
		if !ok {
			return Response{Reply: r.responses.InvalidCategory(), State: conv.State}, nil
		}
		next, err := r.sm.TransitionWithData(ctx, conv, models.StateCheckingDescription, map[string]any{
			dataCategory: string(category),
		})
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.CheckCategoryConfirm(category), State: next.State}, nil

	case models.StateCheckingDescription:
		if len([]rune(input)) < models.MinDescriptionLength {
			return Response{Reply: r.responses.DescriptionTooShort(), State: conv.State}, nil
		}
		next, err := r.sm.TransitionWithData(ctx, conv, models.StateCheckingLocation, map[string]any{
			dataDescription: input,
			dataBrandModel:  r.parser.ExtractBrandModel(input),
		})
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.CheckLocationPrompt(), State: next.State}, nil
	}

	location := ""
	if !strings.EqualFold(input, skipWord) {
		location = r.parser.ParseLocationText(input)
	}
	done, err := r.sm.Complete(ctx, conv)
	if err != nil {
		return Response{}, err
	}
	if r.items == nil {
		return Response{Reply: r.responses.Unavailable(), State: done.State}, nil
	}

	res, err := r.items.CheckIfStolen(ctx, items.CheckQuery{
		Description: conv.GetString(dataDescription),
		Brand:       conv.GetString(dataBrandModel),
		Category:    conv.GetString(dataCategory),
		Location:    coordinatesOf(location),
	})
	if err != nil {
		slog.Error("Router check failed", "phone", util.RedactPhone(conv.PhoneNumber), "error", err)
		r.metrics.HandlerError(ErrorKind(err))
		return Response{Reply: r.responses.Error(r.errHandler.HandleError(err)), State: done.State}, nil
	}
	return Response{Reply: r.responses.CheckComplete(res.TotalCount), State: done.State}, nil
}

// coordinatesOf returns the coordinates in a location answer, or nil for free text.
func coordinatesOf(text string) *models.Location {
	if text == "" {
		return nil
	}
	loc, ok := models.ParseCoordinates(text)
	if !ok {
		return nil
	}
	loc.Address = text
	return loc
}
