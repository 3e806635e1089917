package client

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
)

// Wire DTOs. Nothing outside this package sees them; toModel validates and
// converts so that downstream code never handles an unchecked shape.

type foodDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       *string `json:"brand,omitempty"`
	Source      string  `json:"source,omitempty"`
	ServingSize float64 `json:"serving_size"`
	ServingUnit string  `json:"serving_unit"`
	Calories    float64 `json:"calories"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
}

func nonNegative(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

func (d foodDTO) toModel() (models.FoodItem, error) {
	if strings.TrimSpace(d.Name) == "" {
		return models.FoodItem{}, malformed("food %q has no name", d.ID)
	}
	if !nonNegative(d.ServingSize, d.Calories, d.ProteinG, d.CarbsG, d.FatG) {
		return models.FoodItem{}, malformed("food %q has invalid nutrient values", d.ID)
	}

	f := models.FoodItem{
		ID:          d.ID,
		Name:        d.Name,
		Source:      d.Source,
		Calories:    int(math.Round(d.Calories)),
		ProteinG:    d.ProteinG,
		CarbsG:      d.CarbsG,
		FatG:        d.FatG,
		ServingSize: d.ServingSize,
		ServingUnit: d.ServingUnit,
	}
	if d.Brand != nil {
		f.Brand = *d.Brand
	}
	return f, nil
}

type entryDTO struct {
	ID       string  `json:"id"`
	Food     foodDTO `json:"food"`
	Quantity float64 `json:"quantity"`
}

func (d entryDTO) toModel() (models.Entry, error) {
	if d.ID == "" {
		return models.Entry{}, malformed("entry without id")
	}
	if !nonNegative(d.Quantity) || d.Quantity == 0 {
		return models.Entry{}, malformed("entry %q has invalid quantity %v", d.ID, d.Quantity)
	}
	food, err := d.Food.toModel()
	if err != nil {
		return models.Entry{}, err
	}
	return models.Entry{ID: d.ID, Food: food, Quantity: d.Quantity}, nil
}

type categoryDTO struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	DisplayOrder int        `json:"display_order"`
	IsDefault    bool       `json:"is_default"`
	Entries      []entryDTO `json:"entries"`
}

type goalsDTO struct {
	Calories *float64 `json:"calories"`
	ProteinG *float64 `json:"protein_g"`
	CarbsG   *float64 `json:"carbs_g"`
	FatG     *float64 `json:"fat_g"`
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

type diaryDTO struct {
	Date       string        `json:"date"`
	Categories []categoryDTO `json:"categories"`
	// Totals is ignored: the client always derives totals from entries.
	Totals json.RawMessage `json:"totals"`
	Goals  *goalsDTO       `json:"goals"`
}

func (d diaryDTO) toModel(want time.Time) (models.DiarySnapshot, error) {
	date, err := time.Parse(common.DateLayout, d.Date)
	if err != nil {
		return models.DiarySnapshot{}, malformed("diary date %q", d.Date)
	}
	if !date.Equal(models.Day(want)) {
		return models.DiarySnapshot{}, malformed("diary for %s returned for %s", d.Date, want.Format(common.DateLayout))
	}

	snap := models.DiarySnapshot{Date: date, Categories: make([]models.Category, 0, len(d.Categories))}
	seenCat := make(map[string]bool, len(d.Categories))
	seenEntry := make(map[string]bool)

	for _, c := range d.Categories {
		if c.ID == "" || seenCat[c.ID] {
			return models.DiarySnapshot{}, malformed("category id %q missing or duplicated", c.ID)
		}
		seenCat[c.ID] = true

		cat := models.Category{
			ID:           c.ID,
			Name:         c.Name,
			DisplayOrder: c.DisplayOrder,
			IsDefault:    c.IsDefault,
			Entries:      make([]models.Entry, 0, len(c.Entries)),
		}
		for _, e := range c.Entries {
			entry, err := e.toModel()
			if err != nil {
				return models.DiarySnapshot{}, err
			}
			if seenEntry[entry.ID] {
				return models.DiarySnapshot{}, malformed("entry %q listed twice", entry.ID)
			}
			seenEntry[entry.ID] = true
			cat.Entries = append(cat.Entries, entry)
		}
		snap.Categories = append(snap.Categories, cat)
	}

	if g := d.Goals; g != nil {
		snap.Goals = &models.Goals{
			Calories: int(math.Round(deref(g.Calories))),
			ProteinG: deref(g.ProteinG),
			CarbsG:   deref(g.CarbsG),
			FatG:     deref(g.FatG),
		}
	}
	return snap.WithTotals(), nil
}

type inlineFoodDTO struct {
	Name        string  `json:"name"`
	Brand       *string `json:"brand,omitempty"`
	ServingSize float64 `json:"serving_size"`
	ServingUnit string  `json:"serving_unit"`
	Calories    int     `json:"calories"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
}

type newEntryDTO struct {
	CategoryID string         `json:"category_id"`
	FoodID     *string        `json:"food_id,omitempty"`
	Food       *inlineFoodDTO `json:"food,omitempty"`
	Quantity   float64        `json:"quantity"`
}

func newEntryFromModel(e models.NewEntry) newEntryDTO {
	out := newEntryDTO{CategoryID: e.CategoryID, Quantity: e.Quantity}
	switch {
	case e.FoodID != "":
		id := e.FoodID
		out.FoodID = &id
	case e.Food != nil:
		f := e.Food
		in := &inlineFoodDTO{
			Name:        f.Name,
			ServingSize: f.ServingSize,
			ServingUnit: f.ServingUnit,
			Calories:    f.Calories,
			ProteinG:    f.ProteinG,
			CarbsG:      f.CarbsG,
			FatG:        f.FatG,
		}
		if f.Brand != "" {
			brand := f.Brand
			in.Brand = &brand
		}
		out.Food = in
	}
	return out
}

type patchDTO struct {
	Quantity   *float64 `json:"quantity,omitempty"`
	CategoryID *string  `json:"category_id,omitempty"`
}

type applyMealDTO struct {
	MealID     string `json:"meal_id"`
	CategoryID string `json:"category_id"`
}

type searchDTO struct {
	Results []foodDTO `json:"results"`
}

type credentialsDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshDTO struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenDTO struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (d tokenDTO) toModel() (models.Credentials, error) {
	if d.AccessToken == "" || d.RefreshToken == "" {
		return models.Credentials{}, malformed("token response without access or refresh token")
	}
	if d.TokenType != "" && !strings.EqualFold(d.TokenType, "bearer") {
		return models.Credentials{}, malformed("unsupported token type %q", d.TokenType)
	}
	return models.Credentials{AccessToken: d.AccessToken, RefreshToken: d.RefreshToken}, nil
}

type userDTO struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

func (d userDTO) toModel() (models.User, error) {
	if d.ID == "" || d.Email == "" {
		return models.User{}, malformed("user without id or email")
	}
	return models.User{ID: d.ID, Email: d.Email, OnboardingCompleted: d.OnboardingCompleted}, nil
}

type authDTO struct {
	tokenDTO
	userDTO
}

type healthDTO struct {
	Status string `json:"status"`
}
