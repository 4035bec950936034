package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinDescriptionLength is the shortest description accepted for a stolen item.
const MinDescriptionLength = 10

// earthRadiusKm is the mean Earth radius used by DistanceKm.
const earthRadiusKm = 6371.0

// ItemCategory classifies stolen items.
type ItemCategory string

const (
	CategoryBicycle ItemCategory = "bicycle"
	CategoryPhone   ItemCategory = "phone"
	CategoryLaptop  ItemCategory = "laptop"
	CategoryVehicle ItemCategory = "vehicle"
)

// ItemCategories lists every category in matching order.
var ItemCategories = []ItemCategory{CategoryBicycle, CategoryPhone, CategoryLaptop, CategoryVehicle}

// categoryAliases maps accepted spellings onto categories for ParseItemCategory.
var categoryAliases = map[string]ItemCategory{
	"bicycle": CategoryBicycle, "bike": CategoryBicycle, "cycle": CategoryBicycle,
	"phone": CategoryPhone, "mobile": CategoryPhone, "smartphone": CategoryPhone, "cellphone": CategoryPhone,
	"laptop": CategoryLaptop, "computer": CategoryLaptop, "notebook": CategoryLaptop,
	"vehicle": CategoryVehicle, "car": CategoryVehicle, "motorbike": CategoryVehicle, "motorcycle": CategoryVehicle,
}

// ParseItemCategory resolves a category name or common alias, case-insensitively.
func ParseItemCategory(s string) (ItemCategory, error) {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// ItemStatus is the lifecycle status of a stolen item report.
type ItemStatus string

const (
	ItemStatusActive    ItemStatus = "active"
	ItemStatusRecovered ItemStatus = "recovered"
	ItemStatusExpired   ItemStatus = "expired"
	ItemStatusDeleted   ItemStatus = "deleted"
)

// ParseItemStatus resolves a status name, case-insensitively.
func ParseItemStatus(s string) (ItemStatus, error) {
	switch status := ItemStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case ItemStatusActive, ItemStatusRecovered, ItemStatusExpired, ItemStatusDeleted:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown item status %q", ErrDomain, s)
}

// Location is a point on the Earth's surface with an optional human-readable address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// NewLocation validates coordinate ranges.
func NewLocation(lat, lon float64, address string) (Location, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Location{}, fmt.Errorf("%w: latitude %v out of range", ErrInvalidLocation, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return Location{}, fmt.Errorf("%w: longitude %v out of range", ErrInvalidLocation, lon)
	}
	return Location{Latitude: lat, Longitude: lon, Address: address}, nil
}

// DistanceKm returns the great-circle distance to other using the haversine formula.
func (l Location) DistanceKm(other Location) float64 {
	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

var coordinatesRegex = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*[, ]\s*(-?\d+(?:\.\d+)?)\s*$`)

// ParseCoordinates reads a "lat, lon" pair such as "51.5072, -0.1276". Free-text
// addresses are not resolved and report false.
func ParseCoordinates(text string) (*Location, bool) {
	m := coordinatesRegex.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, false
	}
	loc, err := NewLocation(lat, lon, "")
	if err != nil {
		return nil, false
	}
	return &loc, true
}

var phoneDigitsRegex = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// NormalizePhoneNumber canonicalises a phone number to E.164 ("+" and 7-15 digits).
// Spaces, dashes, parentheses and a "whatsapp:" prefix are tolerated.
func NormalizePhoneNumber(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "whatsapp:")
	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	if !phoneDigitsRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, raw)
	}
	return s, nil
}

var policeReferenceRegex = regexp.MustCompile(`^CR/\d{4}/\d{6}$`)

// NormalizePoliceReference validates a police reference of the form CR/YYYY/NNNNNN.
func NormalizePoliceReference(raw string) (string, error) {
	ref := strings.ToUpper(strings.TrimSpace(raw))
	if !policeReferenceRegex.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPoliceReference, raw)
	}
	return ref, nil
}

// StolenItem is a stolen item report.
type StolenItem struct {
	ID              uuid.UUID    `json:"id"`
	ReporterPhone   string       `json:"reporter_phone"`
	Category        ItemCategory `json:"category"`
	Description     string       `json:"description"`
	StolenDate      time.Time    `json:"stolen_date"`
	Location        *Location    `json:"location,omitempty"`
	Status          ItemStatus   `json:"status"`
	Verified        bool         `json:"verified"`
	PoliceReference string       `json:"police_reference,omitempty"`
	Brand           string       `json:"brand,omitempty"`
	Model           string       `json:"model,omitempty"`
	SerialNumber    string       `json:"serial_number,omitempty"`
	Color           string       `json:"color,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// NewStolenItemParams carries the fields needed to create a report.
type NewStolenItemParams struct {
	ReporterPhone string
	Category      ItemCategory
	Description   string
	StolenDate    time.Time
	Location      *Location // nil when the reporter did not know
	Brand         string
	Model         string
	SerialNumber  string
	Color         string
}

// NewStolenItem validates p and returns an active report with a fresh id.
func NewStolenItem(p NewStolenItemParams, now time.Time) (*StolenItem, error) {
	if err := validateDescription(p.Description); err != nil {
		return nil, err
	}
	if p.StolenDate.After(now) {
		return nil, fmt.Errorf("%w: stolen date cannot be in the future", ErrInvalidDate)
	}
	return &StolenItem{
		ID:            uuid.New(),
		ReporterPhone: p.ReporterPhone,
		Category:      p.Category,
		Description:   strings.TrimSpace(p.Description),
		StolenDate:    p.StolenDate.UTC(),
		Location:      p.Location,
		Status:        ItemStatusActive,
		Brand:         p.Brand,
		Model:         p.Model,
		SerialNumber:  p.SerialNumber,
		Color:         p.Color,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validateDescription(d string) error {
	d = strings.TrimSpace(d)
	if d == "" {
		return fmt.Errorf("%w: description cannot be empty", ErrInvalidDescription)
	}
	if len([]rune(d)) < MinDescriptionLength {
		return fmt.Errorf("%w: description must be at least %d characters", ErrInvalidDescription, MinDescriptionLength)
	}
	return nil
}

// IsReportedBy reports whether phone filed this report.
func (i *StolenItem) IsReportedBy(phone string) bool {
	return i.ReporterPhone == phone
}

// MarkRecovered moves an active report to recovered.
func (i *StolenItem) MarkRecovered(now time.Time) error {
	switch i.Status {
	case ItemStatusRecovered:
		return ErrItemAlreadyRecovered
	case ItemStatusDeleted:
		return ErrItemAlreadyDeleted
	}
	i.Status = ItemStatusRecovered
	i.UpdatedAt = now
	return nil
}

// Verify attaches a police reference to the report.
func (i *StolenItem) Verify(policeRef string, now time.Time) error {
	if i.Status == ItemStatusDeleted {
		return ErrItemAlreadyDeleted
	}
	if i.Verified {
		return ErrItemAlreadyVerified
	}
	if i.Status != ItemStatusActive {
		return ErrItemNotActive
	}
	i.Verified = true
	i.PoliceReference = policeRef
	i.UpdatedAt = now
	return nil
}

// MarkDeleted soft-deletes the report.
func (i *StolenItem) MarkDeleted(now time.Time) error {
	if i.Status == ItemStatusDeleted {
		return ErrItemAlreadyDeleted
	}
	i.Status = ItemStatusDeleted
	i.UpdatedAt = now
	return nil
}

// ItemUpdate holds optional replacement values; nil fields are left unchanged.
type ItemUpdate struct {
	Description  *string
	Brand        *string
	Model        *string
	SerialNumber *string
	Color        *string
}

// Apply writes the non-nil fields of u and returns the names of the fields changed.
func (i *StolenItem) Apply(u ItemUpdate, now time.Time) (map[string]string, error) {
	if i.Status == ItemStatusDeleted {
		return nil, ErrItemAlreadyDeleted
	}
	changed := map[string]string{}
	if u.Description != nil {
		if err := validateDescription(*u.Description); err != nil {
			return nil, err
		}
		i.Description = strings.TrimSpace(*u.Description)
		changed["description"] = i.Description
	}
	if u.Brand != nil {
		i.Brand = *u.Brand
		changed["brand"] = i.Brand
	}
	if u.Model != nil {
		i.Model = *u.Model
		changed["model"] = i.Model
	}
	if u.SerialNumber != nil {
		i.SerialNumber = *u.SerialNumber
		changed["serial_number"] = i.SerialNumber
	}
	if u.Color != nil {
		i.Color = *u.Color
		changed["color"] = i.Color
	}
	if len(changed) > 0 {
		i.UpdatedAt = now
	}
	return changed, nil
}
