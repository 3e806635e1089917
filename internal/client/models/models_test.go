package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oat() FoodItem {
	return FoodItem{ID: "f1", Name: "Oatmeal", Calories: 150, ProteinG: 5, CarbsG: 27, FatG: 3, ServingSize: 40, ServingUnit: "g"}
}

func TestSum_OverAllCategories(t *testing.T) {
	cats := []Category{
		{ID: "b", Entries: []Entry{{ID: "1", Food: oat(), Quantity: 1}, {ID: "2", Food: oat(), Quantity: 0.5}}},
		{ID: "l", Entries: []Entry{{ID: "3", Food: FoodItem{Calories: 200, ProteinG: 10, CarbsG: 0, FatG: 12}, Quantity: 2}}},
		{ID: "d"},
	}

	got := Sum(cats)
	assert.Equal(t, Totals{Calories: 625, ProteinG: 27.5, CarbsG: 40.5, FatG: 28.5}, got)
}

func TestSum_Empty(t *testing.T) {
	assert.Equal(t, Totals{}, Sum(nil))
}

func TestClone_IsDeep(t *testing.T) {
	s := DiarySnapshot{
		Date:       time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Categories: []Category{{ID: "b", Entries: []Entry{{ID: "1", Food: oat(), Quantity: 1}}}},
		Goals:      &Goals{Calories: 2000},
	}
	c := s.Clone()
	c.Categories[0].Entries[0].Quantity = 3
	c.Categories[0].Entries = append(c.Categories[0].Entries, Entry{ID: "2"})
	c.Goals.Calories = 1

	assert.Equal(t, 1.0, s.Categories[0].Entries[0].Quantity)
	assert.Len(t, s.Categories[0].Entries, 1)
	assert.Equal(t, 2000, s.Goals.Calories)
}

func TestFindEntry(t *testing.T) {
	s := DiarySnapshot{Categories: []Category{
		{ID: "b", Entries: []Entry{{ID: "1"}}},
		{ID: "l", Entries: []Entry{{ID: "2"}, {ID: "3"}}},
	}}
	e, cat, ok := s.FindEntry("3")
	require.True(t, ok)
	assert.Equal(t, "3", e.ID)
	assert.Equal(t, "l", cat)

	_, _, ok = s.FindEntry("nope")
	assert.False(t, ok)
	assert.Equal(t, 3, s.EntryCount())
}

func TestFoodItem_Validate(t *testing.T) {
	require.NoError(t, oat().Validate())

	usda := FoodItem{ID: "usda:171688", Source: SourceUSDA, Name: "Apple", Calories: 52, ServingSize: 100, ServingUnit: "g"}
	require.NoError(t, usda.Validate())
	assert.False(t, usda.Stored())

	inline := FoodItem{Name: "Soup", Calories: 90}
	err := inline.Validate()
	assert.True(t, errors.Is(err, common.ErrValidation))

	neg := oat()
	neg.FatG = -1
	assert.True(t, errors.Is(neg.Validate(), common.ErrValidation))

	noName := oat()
	noName.Name = ""
	assert.True(t, errors.Is(noName.Validate(), common.ErrValidation))
}

func TestValidateQuantity(t *testing.T) {
	assert.NoError(t, ValidateQuantity(0.25))
	assert.Error(t, ValidateQuantity(0))
	assert.Error(t, ValidateQuantity(-1))
	assert.ErrorIs(t, ValidateQuantity(math.NaN()), common.ErrValidation)
	assert.ErrorIs(t, ValidateQuantity(math.Inf(1)), common.ErrValidation)
	assert.ErrorIs(t, ValidateQuantity(math.Inf(-1)), common.ErrValidation)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-04 ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("04/03/2025")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestIsTempID(t *testing.T) {
	assert.True(t, IsTempID("tmp-123"))
	assert.False(t, IsTempID("9b2e"))
}

func TestFoodItem_ReferenceID(t *testing.T) {
	assert.Equal(t, "0d6f", FoodItem{ID: "custom:0d6f", Source: SourceCustom}.ReferenceID())
	assert.Equal(t, "0d6f", FoodItem{ID: "0d6f"}.ReferenceID())
}
