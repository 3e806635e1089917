package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/diary"
	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
)

var errNoDay = errors.New("no diary day is open, use 'day' first")

// followTimeout bounds how long a mutation is watched for a failure report.
const followTimeout = time.Minute

func usage(text string) error {
	return fmt.Errorf("usage: %s", text)
}

// Day opens a diary day: a YYYY-MM-DD date, today, yesterday or tomorrow.
func (a *App) Day(ctx context.Context, args []string) error {
	date := a.today()
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "today":
		case "yesterday":
			date = date.AddDate(0, 0, -1)
		case "tomorrow":
			date = date.AddDate(0, 0, 1)
		default:
			d, err := models.ParseDate(args[0])
			if err != nil {
				return err
			}
			date = d
		}
	}
	if err := a.diary.Load(ctx, date); err != nil {
		return err
	}
	printlnFn(renderDiary(a.diary.Snapshot()))
	return nil
}

func (a *App) Show(ctx context.Context) error {
	if !a.diary.Loaded() {
		return errNoDay
	}
	printlnFn(renderDiary(a.diary.Snapshot()))
	if err := a.diary.Err(); err != nil {
		printlnFn("(last sync failed:", describe(err)+")")
	}
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if !a.diary.Loaded() {
		return errNoDay
	}
	if err := a.diary.Refresh(ctx); err != nil {
		return err
	}
	printlnFn(renderDiary(a.diary.Snapshot()))
	return nil
}

// Add logs a food from the last search: add <category> <result#|food-id> [qty].
func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usage("add <category> <result#|food-id> [qty]")
	}
	if !a.diary.Loaded() {
		return errNoDay
	}
	catID, err := a.resolveCategory(args[0])
	if err != nil {
		return err
	}
	food, err := a.resolveFood(args[1])
	if err != nil {
		return err
	}
	qty := 1.0
	if len(args) == 3 {
		if qty, err = parseQuantity(args[2]); err != nil {
			return err
		}
	}

	m, err := a.diary.AddEntry(ctx, catID, food, qty)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Added %s x%g to %s", foodLabel(food), qty, catID))
	a.follow(m)
	return nil
}

// Update changes an entry: update <entry> <qty> [category].
func (a *App) Update(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usage("update <entry> <qty> [category]")
	}
	entry, err := a.resolveEntry(args[0])
	if err != nil {
		return err
	}
	qty, err := parseQuantity(args[1])
	if err != nil {
		return err
	}
	patch := models.EntryPatch{Quantity: &qty}
	if len(args) == 3 {
		catID, err := a.resolveCategory(args[2])
		if err != nil {
			return err
		}
		patch.CategoryID = &catID
	}

	m, err := a.diary.UpdateEntry(ctx, entry.ID, patch)
	if err != nil {
		return err
	}
	printlnFn("Updated", foodLabel(entry.Food))
	a.follow(m)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("delete <entry>")
	}
	entry, err := a.resolveEntry(args[0])
	if err != nil {
		return err
	}
	m, err := a.diary.DeleteEntry(ctx, entry.ID)
	if err != nil {
		return err
	}
	printlnFn("Deleted", foodLabel(entry.Food))
	a.follow(m)
	return nil
}

// Meal applies a saved meal: meal <meal-id> <category>.
func (a *App) Meal(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("meal <meal-id> <category>")
	}
	if !a.diary.Loaded() {
		return errNoDay
	}
	catID, err := a.resolveCategory(args[1])
	if err != nil {
		return err
	}
	m, err := a.diary.ApplyMeal(ctx, args[0], catID)
	if err != nil {
		return err
	}
	printlnFn("Applying meal", args[0], "to", catID)
	a.follow(m)
	return nil
}

// follow reports a mutation that the service rejected. By the time it
// prints, the store has refetched the day and no longer shows the change.
func (a *App) follow(m *diary.Mutation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), followTimeout)
		defer cancel()
		err := m.Wait(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			a.log.Warn(ctx, "diary change still pending", "kind", m.Kind())
		default:
			printlnFn(fmt.Sprintf("Could not %s entry: %s", m.Kind(), describe(err)))
		}
	}()
}

// resolveCategory matches a category by id or name, case-insensitively.
func (a *App) resolveCategory(arg string) (string, error) {
	snap := a.diary.Snapshot()
	for _, c := range snap.Categories {
		if strings.EqualFold(c.ID, arg) || strings.EqualFold(c.Name, arg) {
			return c.ID, nil
		}
	}
	return "", common.Invalid("category", fmt.Sprintf("no category %q", arg))
}

// resolveEntry accepts the number shown by 'show' or an entry id.
func (a *App) resolveEntry(arg string) (models.Entry, error) {
	if !a.diary.Loaded() {
		return models.Entry{}, errNoDay
	}
	entries := entryOrder(a.diary.Snapshot())
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(entries) {
			return models.Entry{}, common.Invalid("entry", fmt.Sprintf("no entry #%d", n))
		}
		return entries[n-1], nil
	}
	for _, e := range entries {
		if e.ID == arg {
			return e, nil
		}
	}
	return models.Entry{}, common.Invalid("entry", fmt.Sprintf("no entry %q", arg))
}

// resolveFood accepts a result number or a food id from the last search.
func (a *App) resolveFood(arg string) (models.FoodItem, error) {
	foods := a.search.Latest().Foods
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(foods) {
			return models.FoodItem{}, common.Invalid("food", fmt.Sprintf("no search result #%d", n))
		}
		return foods[n-1], nil
	}
	for _, f := range foods {
		if f.ID == arg {
			return f, nil
		}
	}
	return models.FoodItem{}, common.Invalid("food", fmt.Sprintf("%q is not in the last search results", arg))
}

func parseQuantity(s string) (float64, error) {
	q, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(q, 0) {
		return 0, common.Invalid("quantity", "not a number")
	}
	return q, models.ValidateQuantity(q)
}

// dayLabel is used in the prompt status.
func dayLabel(d, today time.Time) string {
	switch {
	case d.Equal(today):
		return "today"
	case d.Equal(today.AddDate(0, 0, -1)):
		return "yesterday"
	default:
		return d.Format(common.DateLayout)
	}
}
