package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	p := NewParser()
	tests := []struct {
		text string
		want models.ItemCategory
		ok   bool
	}{
		{"bicycle", models.CategoryBicycle, true},
		{"My mountain bike!", models.CategoryBicycle, true},
		{"E-Bike", models.CategoryBicycle, true},
		{"my iPhone", models.CategoryPhone, true},
		{"old thinkpad", models.CategoryLaptop, true},
		{"CAR", models.CategoryVehicle, true},
		{"bike and phone", models.CategoryBicycle, true},
		{"scarf", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := p.ParseCategory(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestLoadCategoryKeywords(t *testing.T) {
	path := testutil.WriteFile(t, "categories.yaml", `
categories:
  Bike: [bike, Penny-Farthing]
  phone: [phone, blower]
`)
	keywords, err := LoadCategoryKeywords(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bike", "penny-farthing"}, keywords[models.CategoryBicycle])

	p := NewParser(WithCategoryKeywords(keywords))
	got, ok := p.ParseCategory("my Penny-Farthing")
	assert.True(t, ok)
	assert.Equal(t, models.CategoryBicycle, got)
	_, ok = p.ParseCategory("laptop")
	assert.False(t, ok, "categories absent from the file are not matched")
}

func TestLoadCategoryKeywordsErrors(t *testing.T) {
	tests := map[string]string{
		"missing key":      "keywords:\n  bike: [bike]\n",
		"unknown category": "categories:\n  sofa: [couch]\n",
		"empty list":       "categories:\n  laptop: []\n",
		"blank keyword":    "categories:\n  laptop: [\"  \"]\n",
		"not a list":       "categories:\n  laptop: notebook\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCategoryKeywords(testutil.WriteFile(t, "categories.yaml", doc))
			assert.Error(t, err)
		})
	}

	_, err := LoadCategoryKeywords("/nonexistent/categories.yaml")
	assert.Error(t, err)
}

func TestExtractBrandModel(t *testing.T) {
	p := NewParser()
	assert.Equal(t, "Trek FX 3", p.ExtractBrandModel("My red Trek FX 3 bike"))
	assert.Equal(t, "samsung s21", p.ExtractBrandModel("samsung galaxy s21 ultra, black"))
	assert.Equal(t, "macbook air", p.ExtractBrandModel("macbook air"))
	assert.Equal(t, "iPhone 13 Pro", p.ExtractBrandModel("Black iPhone 13 Pro with cracked case"))
	assert.Empty(t, p.ExtractBrandModel("it was stolen yesterday"))
}

func TestParseLocationText(t *testing.T) {
	assert.Equal(t, "Main Street, downtown", NewParser().ParseLocationText("  Main Street, downtown \n"))
}

func TestParseDate(t *testing.T) {
	// t0 is Saturday 15 June 2024, 12:00 UTC.
	p := NewParser(WithParserClock(func() time.Time { return t0 }))
	midnight := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	valid := []struct {
		text string
		want time.Time
	}{
		{"today", t0},
		{"Yesterday", t0.AddDate(0, 0, -1)},
		{"3 days ago", t0.AddDate(0, 0, -3)},
		{"a week ago", t0.AddDate(0, 0, -7)},
		{"two months ago", t0.AddDate(0, -2, 0)},
		{"5 hours ago", t0.Add(-5 * time.Hour)},
		{"last week", t0.AddDate(0, 0, -7)},
		{"last year", t0.AddDate(-1, 0, 0)},
		{"last monday", t0.AddDate(0, 0, -5)},
		{"last saturday", t0.AddDate(0, 0, -7)},
		{"2024-01-15", midnight(2024, time.January, 15)},
		{"15/01/2024", midnight(2024, time.January, 15)},
		{"15 Jan 2024", midnight(2024, time.January, 15)},
		{"15th January 2024", midnight(2024, time.January, 15)},
		{"January 2, 2024", midnight(2024, time.January, 2)},
		{"jan 2 2024", midnight(2024, time.January, 2)},
		{"1st June", midnight(2024, time.June, 1)},
		{"skip", t0},
		{"Don't know", t0},
		{"not sure", t0},
	}
	for _, tt := range valid {
		got, ok := p.ParseDate(tt.text)
		if assert.True(t, ok, tt.text) {
			assert.Equal(t, tt.want, got, tt.text)
		}
	}

	invalid := []string{
		"",
		"tomorrow",
		"2025-03-01",
		"20 December",
		"the blue one",
		"next tuesday",
		"sometime in " + strings.Repeat("the distant past ", 10) + "2020",
		"99/99/2024",
	}
	for _, text := range invalid {
		_, ok := p.ParseDate(text)
		assert.False(t, ok, text)
	}
}
