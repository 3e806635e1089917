package models

import (
	"strings"

	"github.com/dmitrijs2005/macrometric/internal/common"
)

// Food sources reported by the search endpoint.
const (
	SourceUSDA   = "usda"
	SourceCustom = "custom"
)

// FoodItem carries per-serving nutrient values.
type FoodItem struct {
	ID          string
	Name        string
	Brand       string
	Source      string
	Calories    int
	ProteinG    float64
	CarbsG      float64
	FatG        float64
	ServingSize float64
	ServingUnit string
}

// Stored reports whether the food has a server-side id that diary entries can
// reference by food_id. Foods coming from an external database (USDA) are
// logged inline instead.
func (f FoodItem) Stored() bool {
	return f.ID != "" && f.Source != SourceUSDA
}

// ReferenceID is the id sent as food_id. Search results prefix custom foods
// with their source ("custom:<id>"); diary payloads carry the bare id.
func (f FoodItem) ReferenceID() string {
	return strings.TrimPrefix(f.ID, SourceCustom+":")
}

// Validate checks the fields the service requires for inline food creation.
func (f FoodItem) Validate() error {
	if f.Name == "" {
		return common.Invalid("food.name", "must not be empty")
	}
	if len(f.Name) > 255 {
		return common.Invalid("food.name", "must be at most 255 characters")
	}
	if f.Calories < 0 || f.ProteinG < 0 || f.CarbsG < 0 || f.FatG < 0 {
		return common.Invalid("food", "nutrient values must not be negative")
	}
	if !f.Stored() {
		if f.ServingSize <= 0 {
			return common.Invalid("food.serving_size", "must be positive")
		}
		if f.ServingUnit == "" {
			return common.Invalid("food.serving_unit", "must not be empty")
		}
	}
	return nil
}
