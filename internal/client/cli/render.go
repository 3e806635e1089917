package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/client/search"
	"github.com/dmitrijs2005/macrometric/internal/common"
)

var errLoginRequired = errors.New("please log in first")

// describe turns an error into a line for the user.
func describe(err error) string {
	var ve *common.ValidationError
	var se *common.ServerError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, common.ErrSessionExpired):
		return "session expired, please log in again"
	case errors.Is(err, common.ErrAuthExpired):
		return "not authorized, please log in"
	case errors.Is(err, common.ErrOffline):
		return "you are offline"
	case errors.Is(err, common.ErrNetwork):
		return "could not reach the server"
	case errors.As(err, &se) && se.Detail != "":
		return se.Detail
	default:
		return err.Error()
	}
}

func foodLabel(f models.FoodItem) string {
	if f.Brand != "" {
		return fmt.Sprintf("%s (%s)", f.Name, f.Brand)
	}
	return f.Name
}

func formatTotals(t models.Totals) string {
	return fmt.Sprintf("%.0f kcal  P %.1fg  C %.1fg  F %.1fg", t.Calories, t.ProteinG, t.CarbsG, t.FatG)
}

// entryOrder lists entries the way renderDiary numbers them.
func entryOrder(s models.DiarySnapshot) []models.Entry {
	var out []models.Entry
	for _, c := range s.Categories {
		out = append(out, c.Entries...)
	}
	return out
}

func renderDiary(s models.DiarySnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Diary for %s\n", s.Date.Format(common.DateLayout))

	n := 0
	for _, c := range s.Categories {
		fmt.Fprintf(&b, "%s [%s]\n", c.Name, c.ID)
		if len(c.Entries) == 0 {
			b.WriteString("  (empty)\n")
		}
		for _, e := range c.Entries {
			n++
			marker := ""
			if models.IsTempID(e.ID) {
				marker = " *"
			}
			fmt.Fprintf(&b, "  %2d. %s x%g  %s%s\n", n, foodLabel(e.Food), e.Quantity, formatTotals(e.Contribution()), marker)
		}
	}

	fmt.Fprintf(&b, "Total: %s", formatTotals(s.Totals))
	if g := s.Goals; g != nil {
		fmt.Fprintf(&b, "\nGoal:  %d kcal  P %.1fg  C %.1fg  F %.1fg", g.Calories, g.ProteinG, g.CarbsG, g.FatG)
	}
	return b.String()
}

func renderResults(res search.Result) string {
	var b strings.Builder
	switch res.Source {
	case search.SourceCache:
		b.WriteString("(cached)\n")
	case search.SourceFallback:
		b.WriteString("(search failed, showing cached results)\n")
	}
	if len(res.Foods) == 0 {
		fmt.Fprintf(&b, "No foods match %q", res.Query)
		return b.String()
	}
	for i, f := range res.Foods {
		fmt.Fprintf(&b, "%2d. %s  %d kcal per %g %s  [%s]", i+1, foodLabel(f), f.Calories, f.ServingSize, f.ServingUnit, f.ID)
		if i < len(res.Foods)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
