package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/flow"
	"github.com/BTreeMap/IsItStolen/internal/models"
)

const (
	repositoryErrorText = "⚠️ We're experiencing a temporary problem.\n\n" +
		"Please try again in a few moments.\nIf the problem persists, please contact support."
	invalidLocationText = "❌ The location you provided is invalid.\n\n" +
		"Please provide a valid location or type 'skip' to continue without location."
	notFoundText = "❌ The item you're looking for doesn't exist.\n\n" +
		"It may have been deleted or the ID is incorrect."
	unauthorizedText = "❌ Only the person who reported this item can change it."
	alreadyDoneText  = "ℹ️ This item has already been %s.\n\nNo further changes were made."
	providerRateText = "⏳ You're sending messages too quickly.\n\nPlease wait a moment and try again."
	transportAPIText = "⚠️ We're having trouble sending your message.\n\nPlease try again in a moment."
	startOverText    = "⚠️ Something went wrong with the conversation flow.\n\n" +
		"Let's start over. Send any message to begin again."
	conversationErrText = "⚠️ There was a problem with the conversation.\n\n" +
		"Please try sending your message again, or type 'cancel' to start over."
	domainErrText = "❌ There was a problem processing your request.\n\n" +
		"Please try again or type 'cancel' to start over."
	unexpectedText = "❌ Something unexpected went wrong.\n\n" +
		"Please try again. If the problem persists, contact support."
	rateLimitText = "⏳ You're sending messages too quickly.\n\n" +
		"Please wait %s before trying again.\n" +
		"This helps us keep the service running smoothly for everyone."
)

// ErrorHandler translates errors into messages that are safe to show users.
type ErrorHandler struct{}

// HandleError returns the user-facing text for err. More specific kinds are checked
// before the kinds they wrap.
func (ErrorHandler) HandleError(err error) string {
	var (
		rateLimited *models.RateLimitError
		repoErr     *models.RepositoryError
		transition  *InvalidStateTransitionError
	)
	switch {
	case errors.As(err, &rateLimited):
		return fmt.Sprintf(rateLimitText, formatWait(rateLimited.RetryAfter))
	case errors.As(err, &repoErr):
		return repositoryErrorText
	case errors.Is(err, models.ErrInvalidLocation):
		return invalidLocationText
	case errors.Is(err, models.ErrInvalidCategory):
		return invalidCategoryText
	case errors.Is(err, models.ErrItemNotFound):
		return notFoundText
	case errors.Is(err, models.ErrUnauthorized):
		return unauthorizedText
	case errors.Is(err, models.ErrItemAlreadyVerified):
		return fmt.Sprintf(alreadyDoneText, "verified")
	case errors.Is(err, models.ErrItemAlreadyDeleted):
		return fmt.Sprintf(alreadyDoneText, "deleted")
	case errors.Is(err, models.ErrItemAlreadyRecovered):
		return fmt.Sprintf(alreadyDoneText, "recovered")
	case errors.Is(err, models.ErrInvalidDescription):
		return descriptionTooShortText
	case errors.Is(err, models.ErrInvalidDate):
		return invalidDateText
	case errors.Is(err, models.ErrTransportRateLimited):
		return providerRateText
	case errors.Is(err, models.ErrTransport):
		return transportAPIText
	case errors.As(err, &transition):
		return startOverText
	case errors.Is(err, ErrConversation):
		return conversationErrText
	case errors.Is(err, flow.ErrFlowNotFound), errors.Is(err, flow.ErrStepNotFound),
		errors.Is(err, flow.ErrHandlerNotFound):
		return genericApology
	case errors.Is(err, models.ErrDomain):
		return domainErrText
	}
	slog.Error("ErrorHandler unexpected error", "error", err)
	return unexpectedText
}

// ErrorKind names the class of err for metrics labels.
func ErrorKind(err error) string {
	var (
		rateLimited *models.RateLimitError
		repoErr     *models.RepositoryError
		transition  *InvalidStateTransitionError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &rateLimited):
		return "rate_limit"
	case errors.As(err, &repoErr):
		return "repository"
	case errors.Is(err, models.ErrTransport):
		return "transport"
	case errors.As(err, &transition):
		return "invalid_transition"
	case errors.Is(err, ErrConversation):
		return "conversation"
	case errors.Is(err, flow.ErrFlowNotFound), errors.Is(err, flow.ErrStepNotFound),
		errors.Is(err, flow.ErrHandlerNotFound):
		return "configuration"
	case errors.Is(err, models.ErrDomain):
		return "domain"
	}
	return "unexpected"
}

// formatWait renders d as "N minute(s) and M second(s)", dropping zero parts.
func formatWait(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	if total < 1 {
		total = 1
	}
	minutes, seconds := total/60, total%60
	switch {
	case minutes == 0:
		return plural(seconds, "second")
	case seconds == 0:
		return plural(minutes, "minute")
	}
	return plural(minutes, "minute") + " and " + plural(seconds, "second")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
