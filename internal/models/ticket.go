package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// SupportTicket is a message left through the contact flow.
type SupportTicket struct {
	ID          uuid.UUID    `json:"id"`
	PhoneNumber string       `json:"phone_number"`
	Message     string       `json:"message"`
	Email       string       `json:"email,omitempty"`
	Status      TicketStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewSupportTicket validates the message and returns an open ticket.
// An email of "skip" is treated as absent.
func NewSupportTicket(phone, message, email string, now time.Time) (*SupportTicket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: support message cannot be empty", ErrDomain)
	}
	email = strings.TrimSpace(email)
	if strings.EqualFold(email, "skip") {
		email = ""
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: %q is not an email address", ErrDomain, email)
	}
	return &SupportTicket{
		ID:          uuid.New(),
		PhoneNumber: phone,
		Message:     message,
		Email:       email,
		Status:      TicketStatusOpen,
		CreatedAt:   now,
	}, nil
}
