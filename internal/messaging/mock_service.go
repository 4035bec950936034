package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/util"
)

// SentMessage records one message passed to MockService.
type SentMessage struct {
	To   string
	Body string
}

// MockService is an in-memory Service for tests and for running without a transport.
// Inbound messages are injected with Deliver.
type MockService struct {
	mu        sync.Mutex
	sent      []SentMessage
	SendErr   error
	receipts  chan models.Receipt
	responses chan models.Response
	stopOnce  sync.Once
}

var _ Service = (*MockService)(nil)

func NewMockService() *MockService {
	return &MockService{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	slog.Debug("MockService recorded message", "to", util.RedactPhone(to), "body_length", len(body))
	return nil
}

func (m *MockService) Start(ctx context.Context) error { return nil }

func (m *MockService) Stop() error {
	m.stopOnce.Do(func() {
		close(m.receipts)
		close(m.responses)
	})
	return nil
}

func (m *MockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *MockService) Responses() <-chan models.Response { return m.responses }

// Deliver queues an inbound message as if it arrived from the transport.
func (m *MockService) Deliver(r models.Response) {
	m.responses <- r
}

// Sent returns a copy of the messages sent so far.
func (m *MockService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
