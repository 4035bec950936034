package conversation

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/IsItStolen/internal/models"
)

// ErrConversation is the parent of every conversation-level error.
var ErrConversation = errors.New("conversation error")

// InvalidStateTransitionError is returned when a transition is not in the state table.
type InvalidStateTransitionError struct {
	From models.ConversationState
	To   models.ConversationState
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from '%s' to '%s'", e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error {
	return ErrConversation
}
