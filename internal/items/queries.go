package items

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/util"
)

// Paging and search limits.
const (
	DefaultLimit    = 50
	MaxLimit        = 100
	DefaultRadiusKm = 10.0
	MaxRadiusKm     = 100.0
)

// CheckQuery describes an item someone wants to check against the stolen register.
type CheckQuery struct {
	Description  string
	Brand        string
	Model        string
	SerialNumber string
	Color        string
	Category     string
	Location     *models.Location
	RadiusKm     float64
	Limit        int
	Offset       int
}

// Match is one stolen report resembling the checked item.
type Match struct {
	Item   *models.StolenItem
	Score  float64
	Reason string
}

// CheckResult holds one page of matches, best first, and the total number found.
type CheckResult struct {
	Matches    []Match
	TotalCount int
}

// CheckIfStolen searches for active reports similar to q. Candidates come from a radius
// search when q has a location, else from q's category, else from every active report.
func (s *Service) CheckIfStolen(ctx context.Context, q CheckQuery) (*CheckResult, error) {
	slog.Debug("Service.CheckIfStolen", "category", q.Category, "has_location", q.Location != nil)

	var category models.ItemCategory
	if q.Category != "" {
		c, err := models.ParseItemCategory(q.Category)
		if err != nil {
			return nil, err
		}
		category = c
	}

	var candidates []*models.StolenItem
	var err error
	if q.Location != nil {
		loc, lerr := models.NewLocation(q.Location.Latitude, q.Location.Longitude, q.Location.Address)
		if lerr != nil {
			return nil, lerr
		}
		radius := q.RadiusKm
		if radius <= 0 {
			radius = DefaultRadiusKm
		}
		candidates, err = s.items.FindNearby(ctx, loc, radius, category)
	} else {
		candidates, err = s.items.FindByCategory(ctx, category, models.ItemStatusActive, MaxLimit)
	}
	if err != nil {
		return nil, err
	}

	search := &models.StolenItem{
		Category:     category,
		Description:  q.Description,
		Brand:        q.Brand,
		Model:        q.Model,
		SerialNumber: q.SerialNumber,
		Color:        q.Color,
	}
	var matches []Match
	for _, c := range candidates {
		score := s.matcher.Similarity(search, c)
		if score < s.matcher.Threshold {
			continue
		}
		matches = append(matches, Match{Item: c, Score: score, Reason: matchReason(search, c, score)})
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})

	s.metrics.ItemChecked(string(category), len(matches))
	slog.Debug("Service.CheckIfStolen scored candidates", "candidates", len(candidates), "matches", len(matches))
	return &CheckResult{Matches: page(matches, q.Offset, q.Limit), TotalCount: len(matches)}, nil
}

// ListQuery selects a reporter's own reports.
type ListQuery struct {
	ReporterPhone string
	Status        string // "" for every status
	Limit         int
	Offset        int
}

// ListResult holds one page of reports, newest first.
type ListResult struct {
	Items      []*models.StolenItem
	TotalCount int
}

// ListUserItems returns the reports filed by q.ReporterPhone.
func (s *Service) ListUserItems(ctx context.Context, q ListQuery) (*ListResult, error) {
	phone, err := models.NormalizePhoneNumber(q.ReporterPhone)
	if err != nil {
		return nil, err
	}
	slog.Debug("Service.ListUserItems", "phone", util.RedactPhone(phone), "status", q.Status)

	found, err := s.items.FindByReporter(ctx, phone)
	if err != nil {
		return nil, err
	}
	if q.Status != "" {
		status, err := models.ParseItemStatus(q.Status)
		if err != nil {
			return nil, err
		}
		found = slices.DeleteFunc(found, func(i *models.StolenItem) bool { return i.Status != status })
	}
	slices.SortStableFunc(found, func(a, b *models.StolenItem) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return &ListResult{Items: page(found, q.Offset, q.Limit), TotalCount: len(found)}, nil
}

// NearbyQuery selects active reports around a point.
type NearbyQuery struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64 // 0 means DefaultRadiusKm
	Category  string
	Limit     int
	Offset    int
}

// NearbyItem is a report annotated with its distance from the search point.
type NearbyItem struct {
	Item       *models.StolenItem
	DistanceKm float64
}

// NearbyResult holds one page of reports, nearest first.
type NearbyResult struct {
	Items      []NearbyItem
	TotalCount int
}

// FindNearbyItems returns active reports within the radius, nearest first.
func (s *Service) FindNearbyItems(ctx context.Context, q NearbyQuery) (*NearbyResult, error) {
	radius := q.RadiusKm
	if radius == 0 {
		radius = DefaultRadiusKm
	}
	if radius < 0 {
		return nil, fmt.Errorf("%w: radius must be positive", models.ErrDomain)
	}
	if radius > MaxRadiusKm {
		return nil, fmt.Errorf("%w: radius %gkm exceeds maximum of %gkm", models.ErrDomain, radius, MaxRadiusKm)
	}
	loc, err := models.NewLocation(q.Latitude, q.Longitude, "")
	if err != nil {
		return nil, err
	}
	var category models.ItemCategory
	if q.Category != "" {
		if category, err = models.ParseItemCategory(q.Category); err != nil {
			return nil, err
		}
	}

	found, err := s.items.FindNearby(ctx, loc, radius, category)
	if err != nil {
		return nil, err
	}
	nearby := make([]NearbyItem, 0, len(found))
	for _, item := range found {
		if item.Location == nil {
			continue
		}
		nearby = append(nearby, NearbyItem{Item: item, DistanceKm: loc.DistanceKm(*item.Location)})
	}
	slices.SortStableFunc(nearby, func(a, b NearbyItem) int {
		return cmp.Compare(a.DistanceKm, b.DistanceKm)
	})
	return &NearbyResult{Items: page(nearby, q.Offset, q.Limit), TotalCount: len(nearby)}, nil
}

// page applies offset and limit. A non-positive limit means DefaultLimit; limits above
// MaxLimit are capped.
func page[T any](all []T, offset, limit int) []T {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	offset = max(offset, 0)
	if offset >= len(all) {
		return []T{}
	}
	return all[offset:min(offset+limit, len(all))]
}
