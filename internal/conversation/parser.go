package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultCategoryKeywords is used when no keyword file is configured.
var DefaultCategoryKeywords = map[models.ItemCategory][]string{
	models.CategoryBicycle: {"bike", "bicycle", "cycle", "bmx", "ebike", "e-bike", "mountain bike", "road bike"},
	models.CategoryPhone:   {"phone", "mobile", "iphone", "smartphone", "cellphone", "android", "galaxy"},
	models.CategoryLaptop:  {"laptop", "computer", "notebook", "macbook", "chromebook", "thinkpad"},
	models.CategoryVehicle: {"car", "vehicle", "motorbike", "motorcycle", "scooter", "moped", "van", "truck"},
}

// LoadCategoryKeywords reads a YAML document of the form
//
//	categories:
//	  bicycle: [bike, bicycle]
//	  phone: [phone, mobile]
//
// Category names are matched case-insensitively and may use any accepted alias.
func LoadCategoryKeywords(path string) (map[models.ItemCategory][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category keywords %s: %w", path, err)
	}
	var doc struct {
		Categories map[string][]string `yaml:"categories"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid category keywords %s: %w", path, err)
	}
	if doc.Categories == nil {
		return nil, errors.New("invalid category keywords: missing 'categories' key")
	}

	keywords := make(map[models.ItemCategory][]string, len(doc.Categories))
	for name, words := range doc.Categories {
		category, err := models.ParseItemCategory(name)
		if err != nil {
			return nil, fmt.Errorf("invalid category keywords: %w", err)
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("invalid category keywords: %q has no keywords", name)
		}
		for _, w := range words {
			if strings.TrimSpace(w) == "" {
				return nil, fmt.Errorf("invalid category keywords: %q has an empty keyword", name)
			}
			keywords[category] = append(keywords[category], strings.ToLower(strings.TrimSpace(w)))
		}
	}
	slog.Info("Loaded category keywords", "path", path, "categories", len(keywords))
	return keywords, nil
}

// ParserOpts holds configuration for Parser.
type ParserOpts struct {
	Keywords map[models.ItemCategory][]string
	Clock    func() time.Time
}

// ParserOption configures a Parser.
type ParserOption func(*ParserOpts)

// WithCategoryKeywords replaces the keyword table used by ParseCategory.
func WithCategoryKeywords(k map[models.ItemCategory][]string) ParserOption {
	return func(o *ParserOpts) {
		o.Keywords = k
	}
}

// WithParserClock overrides the reference time for relative dates.
func WithParserClock(clock func() time.Time) ParserOption {
	return func(o *ParserOpts) {
		o.Clock = clock
	}
}

// Parser extracts structured values from free-text replies.
type Parser struct {
	keywords map[models.ItemCategory][]string
	clock    func() time.Time
}

// NewParser creates a parser using DefaultCategoryKeywords unless overridden.
func NewParser(opts ...ParserOption) *Parser {
	o := ParserOpts{Keywords: DefaultCategoryKeywords, Clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Parser{keywords: o.Keywords, clock: o.Clock}
}

// ParseCategory finds the first category, in models.ItemCategories order, with a
// keyword appearing as a whole word or phrase in text.
func (p *Parser) ParseCategory(text string) (models.ItemCategory, bool) {
	padded := " " + normalizeWords(text) + " "
	for _, category := range models.ItemCategories {
		for _, kw := range p.keywords[category] {
			if strings.Contains(padded, " "+normalizeWords(kw)+" ") {
				return category, true
			}
		}
	}
	return "", false
}

// normalizeWords lower-cases text and turns everything except letters, digits and
// hyphens into single spaces.
func normalizeWords(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

var (
	knownBrands = []string{
		"apple", "iphone", "samsung", "huawei", "trek", "giant", "specialized",
		"macbook", "dell", "hp", "lenovo", "asus", "acer",
	}
	brandStopWords = []string{
		"my", "the", "was", "is", "stolen", "lost", "yesterday", "today",
		"red", "blue", "black", "white", "silver", "gold",
		"it", "at", "on", "in", "near", "from",
	}
	modelSuffixes = []string{"pro", "max", "air", "mini", "plus"}
)

// ExtractBrandModel keeps the words of text that look like a brand or model: known
// brands, capitalised words, words with digits and common model suffixes. Colours and
// filler words are dropped.
func (p *Parser) ExtractBrandModel(text string) string {
	var kept []string
	for _, word := range strings.Fields(text) {
		clean := strings.Trim(word, ",.!?;:")
		if clean == "" {
			continue
		}
		lower := strings.ToLower(clean)
		if slices.Contains(brandStopWords, lower) {
			continue
		}
		first := []rune(clean)[0]
		if slices.Contains(knownBrands, lower) ||
			unicode.IsUpper(first) ||
			strings.ContainsFunc(clean, unicode.IsDigit) ||
			slices.Contains(modelSuffixes, lower) {
			kept = append(kept, clean)
		}
	}
	return strings.Join(kept, " ")
}

// ParseLocationText returns the location answer as typed, trimmed.
func (p *Parser) ParseLocationText(text string) string {
	return strings.TrimSpace(text)
}

const maxDateInputLength = 100

var (
	unknownDateAnswers = []string{"skip", "unknown", "don't know", "dont know", "not sure"}
	dateIndicators     = []string{
		"today", "yesterday", "tomorrow", "ago", "last", "week", "month", "year",
		"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec",
	}
	agoRegex     = regexp.MustCompile(`^(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten)\s+(minute|hour|day|week|month|year)s?\s+ago$`)
	lastRegex    = regexp.MustCompile(`^last\s+(week|month|year|monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)
	ordinalRegex = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	numberWords  = map[string]int{
		"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	}
	weekdays = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
		"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	}
	// Day-first layouts are tried before month-first ones.
	absoluteDateLayouts = []string{
		"2006-01-02",
		"02/01/2006", "2/1/2006", "02-01-2006", "02.01.2006",
		"2 Jan 2006", "2 January 2006", "2 Jan, 2006", "2 January, 2006",
		"Jan 2 2006", "January 2 2006", "Jan 2, 2006", "January 2, 2006",
	}
	currentYearLayouts = []string{"2 Jan", "2 January", "Jan 2", "January 2"}
)

// ParseDate reads when an item was stolen. It accepts "today", "yesterday",
// "N days/weeks/months ago", "last week/month/year/<weekday>" and common absolute
// formats. "skip" and similar answers mean now. Text longer than 100 characters,
// text without any date indicator and dates in the future are rejected.
func (p *Parser) ParseDate(text string) (time.Time, bool) {
	now := p.clock().UTC()
	lower := strings.ToLower(strings.TrimSpace(text))

	if slices.Contains(unknownDateAnswers, lower) {
		return now, true
	}
	if len(text) > maxDateInputLength || lower == "" {
		return time.Time{}, false
	}
	if !slices.ContainsFunc(dateIndicators, func(k string) bool { return strings.Contains(lower, k) }) &&
		!strings.ContainsFunc(lower, unicode.IsDigit) {
		return time.Time{}, false
	}

	parsed, ok := parseDateExpression(lower, now)
	if !ok || parsed.After(now) {
		return time.Time{}, false
	}
	return parsed, true
}

func parseDateExpression(lower string, now time.Time) (time.Time, bool) {
	switch lower {
	case "today", "now":
		return now, true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	case "tomorrow":
		return now.AddDate(0, 0, 1), true
	}

	if m := agoRegex.FindStringSubmatch(lower); m != nil {
		n, ok := numberWords[m[1]]
		if !ok {
			v, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			n = v
		}
		switch m[2] {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute), true
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "day":
			return now.AddDate(0, 0, -n), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "month":
			return now.AddDate(0, -n, 0), true
		case "year":
			return now.AddDate(-n, 0, 0), true
		}
	}

	if m := lastRegex.FindStringSubmatch(lower); m != nil {
		switch m[1] {
		case "week":
			return now.AddDate(0, 0, -7), true
		case "month":
			return now.AddDate(0, -1, 0), true
		case "year":
			return now.AddDate(-1, 0, 0), true
		}
		back := (int(now.Weekday()) - int(weekdays[m[1]]) + 7) % 7
		if back == 0 {
			back = 7
		}
		return now.AddDate(0, 0, -back), true
	}

	cleaned := ordinalRegex.ReplaceAllString(lower, "$1")
	for _, layout := range absoluteDateLayouts {
		if t, err := time.Parse(layout, titleMonths(cleaned)); err == nil {
			return t, true
		}
	}
	for _, layout := range currentYearLayouts {
		if t, err := time.Parse(layout, titleMonths(cleaned)); err == nil {
			return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// titleMonths capitalises each word so lower-cased month names parse with Go layouts.
func titleMonths(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
