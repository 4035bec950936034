package conversation

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/flow"
	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestHandleError(t *testing.T) {
	h := ErrorHandler{}
	tests := []struct {
		name string
		err  error
		want string
		kind string
	}{
		{"repository", models.NewRepositoryError("save", errors.New("timeout")), repositoryErrorText, "repository"},
		{"invalid location", fmt.Errorf("report: %w", models.ErrInvalidLocation), invalidLocationText, "domain"},
		{"invalid category", models.ErrInvalidCategory, invalidCategoryText, "domain"},
		{"not found", models.ErrItemNotFound, notFoundText, "domain"},
		{"unauthorized", models.ErrUnauthorized, unauthorizedText, "domain"},
		{"already verified", models.ErrItemAlreadyVerified, "ℹ️ This item has already been verified.\n\nNo further changes were made.", "domain"},
		{"already recovered", models.ErrItemAlreadyRecovered, "ℹ️ This item has already been recovered.\n\nNo further changes were made.", "domain"},
		{"description", models.ErrInvalidDescription, descriptionTooShortText, "domain"},
		{"provider rate limit", fmt.Errorf("send: %w", models.ErrTransportRateLimited), providerRateText, "transport"},
		{"transport", fmt.Errorf("send: %w", models.ErrTransport), transportAPIText, "transport"},
		{"invalid transition", &InvalidStateTransitionError{From: models.StateIdle, To: models.StateComplete}, startOverText, "invalid_transition"},
		{"conversation", fmt.Errorf("%w: corrupt context", ErrConversation), conversationErrText, "conversation"},
		{"unknown flow", fmt.Errorf("%w: lost_property", flow.ErrFlowNotFound), genericApology, "configuration"},
		{"unknown step", fmt.Errorf("%w: flow \"check_item\" has no step \"gone\"", flow.ErrStepNotFound), genericApology, "configuration"},
		{"unknown handler", fmt.Errorf("%w: geocode", flow.ErrHandlerNotFound), genericApology, "configuration"},
		{"generic domain", models.ErrItemNotActive, domainErrText, "domain"},
		{"unexpected", errors.New("nil pointer"), unexpectedText, "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.HandleError(tt.err))
			assert.Equal(t, tt.kind, ErrorKind(tt.err))
		})
	}
}

func TestHandleErrorRateLimit(t *testing.T) {
	h := ErrorHandler{}
	err := &models.RateLimitError{Key: "+447700900123", RetryAfter: 90 * time.Second}
	assert.Equal(t,
		"⏳ You're sending messages too quickly.\n\nPlease wait 1 minute and 30 seconds before trying again.\n"+
			"This helps us keep the service running smoothly for everyone.",
		h.HandleError(fmt.Errorf("inbound: %w", err)))
	assert.Equal(t, "rate_limit", ErrorKind(err))
}

func TestFormatWait(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "1 second",
		time.Second:             "1 second",
		30 * time.Second:        "30 seconds",
		time.Minute:             "1 minute",
		125 * time.Second:       "2 minutes and 5 seconds",
		1500 * time.Millisecond: "2 seconds",
	}
	for d, want := range tests {
		assert.Equal(t, want, formatWait(d), d.String())
	}
}

func TestFlowPromptRendering(t *testing.T) {
	b := ResponseBuilder{}

	text := b.FlowPrompt("Describe the item", flow.PromptTypeText)
	assert.Nil(t, text.Interactive)

	buttons := b.FlowPrompt("Reply 'yes', 'no' or 'cancel'", flow.PromptTypeButton)
	if assert.NotNil(t, buttons.Interactive) {
		assert.Equal(t, InteractiveButton, buttons.Interactive.Type)
		assert.Equal(t, []Option{{ID: "yes", Title: "Yes"}, {ID: "no", Title: "No"}}, buttons.Interactive.Options)
	}

	tooMany := b.FlowPrompt("Pick 'a', 'b', 'c' or 'd'", flow.PromptTypeButton)
	assert.Nil(t, tooMany.Interactive)
	assert.Equal(t, "Pick 'a', 'b', 'c' or 'd'", tooMany.Text)
}

func TestFlowResultReplies(t *testing.T) {
	b := ResponseBuilder{}
	assert.Equal(t, checkNoMatchesText, b.FlowResult(OptionCheckItem, map[string]any{"match_count": 0}).Text)
	assert.Contains(t, b.FlowResult(OptionCheckItem, map[string]any{"match_count": float64(3)}).Text, "Found 3 potential matches.")
	assert.Equal(t, reportCompleteText, b.FlowResult(OptionReportItem, map[string]any{"report_id": "x"}).Text)
	assert.Equal(t, contactText, b.FlowResult(OptionContactUs, nil).Text)
	assert.Equal(t, flowDoneText, b.FlowResult("survey", nil).Text)
}
