package models

import (
	"math"
	"strings"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/common"
)

// TempIDPrefix marks ids synthesized locally for entries the server has not
// confirmed yet.
const TempIDPrefix = "tmp-"

// IsTempID reports whether id was synthesized locally.
func IsTempID(id string) bool { return strings.HasPrefix(id, TempIDPrefix) }

// Entry is one logged food in a category. Quantity is a number of servings.
type Entry struct {
	ID       string
	Food     FoodItem
	Quantity float64
}

// Category groups entries; Entries are in server display order.
type Category struct {
	ID           string
	Name         string
	DisplayOrder int
	IsDefault    bool
	Entries      []Entry
}

// Goals are the user's daily targets.
type Goals struct {
	Calories int
	ProteinG float64
	CarbsG   float64
	FatG     float64
}

// DiarySnapshot is one day of the diary. Totals is derived from Categories
// whenever a snapshot is handed out and is never carried independently.
type DiarySnapshot struct {
	Date       time.Time
	Categories []Category
	Totals     Totals
	Goals      *Goals
}

// Clone returns a deep copy safe to mutate.
func (s DiarySnapshot) Clone() DiarySnapshot {
	out := s
	out.Categories = make([]Category, len(s.Categories))
	for i, c := range s.Categories {
		c.Entries = append([]Entry(nil), c.Entries...)
		out.Categories[i] = c
	}
	if s.Goals != nil {
		g := *s.Goals
		out.Goals = &g
	}
	return out
}

// Category returns the category with the given id.
func (s DiarySnapshot) Category(id string) (*Category, bool) {
	for i := range s.Categories {
		if s.Categories[i].ID == id {
			return &s.Categories[i], true
		}
	}
	return nil, false
}

// FindEntry locates an entry and the category holding it.
func (s DiarySnapshot) FindEntry(id string) (Entry, string, bool) {
	for _, c := range s.Categories {
		for _, e := range c.Entries {
			if e.ID == id {
				return e, c.ID, true
			}
		}
	}
	return Entry{}, "", false
}

// EntryCount returns the number of entries across all categories.
func (s DiarySnapshot) EntryCount() int {
	n := 0
	for _, c := range s.Categories {
		n += len(c.Entries)
	}
	return n
}

// WithTotals returns s with Totals recomputed from its entries.
func (s DiarySnapshot) WithTotals() DiarySnapshot {
	s.Totals = Sum(s.Categories)
	return s
}

// NewEntry is the payload of a create call. Exactly one of FoodID or Food is
// sent on the wire.
type NewEntry struct {
	CategoryID string
	FoodID     string
	Food       *FoodItem
	Quantity   float64
}

// EntryPatch is a partial update; nil fields are left unchanged.
type EntryPatch struct {
	Quantity   *float64
	CategoryID *string
}

// Empty reports whether the patch changes nothing.
func (p EntryPatch) Empty() bool {
	return p.Quantity == nil && p.CategoryID == nil
}

// ValidateQuantity rejects non-positive and non-finite servings.
func ValidateQuantity(q float64) error {
	if math.IsInf(q, 0) {
		return common.Invalid("quantity", "must be finite")
	}
	if !(q > 0) {
		return common.Invalid("quantity", "must be positive")
	}
	return nil
}

// ParseDate parses a diary date in common.DateLayout.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(common.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, common.Invalid("date", "expected YYYY-MM-DD")
	}
	return d, nil
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
