package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/google/uuid"
)

// InMemoryItemStore is a process-local ItemRepository and TicketRepository.
// Stored values are copied on the way in and out.
type InMemoryItemStore struct {
	mu      sync.RWMutex
	items   map[uuid.UUID]models.StolenItem
	tickets map[uuid.UUID]models.SupportTicket
}

var (
	_ ItemRepository   = (*InMemoryItemStore)(nil)
	_ TicketRepository = (*InMemoryItemStore)(nil)
)

func NewInMemoryItemStore() *InMemoryItemStore {
	return &InMemoryItemStore{
		items:   make(map[uuid.UUID]models.StolenItem),
		tickets: make(map[uuid.UUID]models.SupportTicket),
	}
}

func copyItem(item models.StolenItem) *models.StolenItem {
	if item.Location != nil {
		loc := *item.Location
		item.Location = &loc
	}
	return &item
}

func (s *InMemoryItemStore) Save(_ context.Context, item *models.StolenItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *copyItem(*item)
	return nil
}

func (s *InMemoryItemStore) FindByID(_ context.Context, id uuid.UUID) (*models.StolenItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return copyItem(item), nil
}

// selectItems returns copies of the items matching keep, newest first.
func (s *InMemoryItemStore) selectItems(keep func(models.StolenItem) bool) []*models.StolenItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.StolenItem
	for _, item := range s.items {
		if keep(item) {
			out = append(out, copyItem(item))
		}
	}
	slices.SortFunc(out, func(a, b *models.StolenItem) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (s *InMemoryItemStore) FindByReporter(_ context.Context, phone string) ([]*models.StolenItem, error) {
	return s.selectItems(func(i models.StolenItem) bool { return i.ReporterPhone == phone }), nil
}

func (s *InMemoryItemStore) FindByCategory(_ context.Context, category models.ItemCategory, status models.ItemStatus, limit int) ([]*models.StolenItem, error) {
	out := s.selectItems(func(i models.StolenItem) bool {
		return (category == "" || i.Category == category) && i.Status == status
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryItemStore) FindNearby(_ context.Context, loc models.Location, radiusKm float64, category models.ItemCategory) ([]*models.StolenItem, error) {
	candidates := s.selectItems(func(i models.StolenItem) bool {
		return i.Status == models.ItemStatusActive && (category == "" || i.Category == category)
	})
	return filterNearby(candidates, loc, radiusKm), nil
}

func (s *InMemoryItemStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *InMemoryItemStore) SaveTicket(_ context.Context, t *models.SupportTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = *t
	return nil
}

func (s *InMemoryItemStore) FindTicketsByPhone(_ context.Context, phone string) ([]*models.SupportTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SupportTicket
	for _, t := range s.tickets {
		if t.PhoneNumber == phone {
			out = append(out, &t)
		}
	}
	slices.SortFunc(out, func(a, b *models.SupportTicket) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return out, nil
}
