package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
)

func datePath(date time.Time) string {
	return "/diary/" + date.Format(common.DateLayout)
}

func entryPath(id string) string {
	return "/diary/entries/" + url.PathEscape(id)
}

func (c *HTTPClient) GetDiary(ctx context.Context, date time.Time) (models.DiarySnapshot, error) {
	var out diaryDTO
	err := c.do(ctx, call{method: http.MethodGet, path: datePath(date), out: &out, authed: true})
	if err != nil {
		return models.DiarySnapshot{}, err
	}
	return out.toModel(date)
}

func (c *HTTPClient) CreateEntry(ctx context.Context, date time.Time, e models.NewEntry) (models.Entry, error) {
	var out entryDTO
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   datePath(date) + "/entries",
		in:     newEntryFromModel(e),
		out:    &out,
		want:   []int{http.StatusCreated, http.StatusOK},
		authed: true,
	})
	if err != nil {
		return models.Entry{}, err
	}
	return out.toModel()
}

func (c *HTTPClient) UpdateEntry(ctx context.Context, entryID string, p models.EntryPatch) (models.Entry, error) {
	var out entryDTO
	err := c.do(ctx, call{
		method: http.MethodPut,
		path:   entryPath(entryID),
		in:     patchDTO{Quantity: p.Quantity, CategoryID: p.CategoryID},
		out:    &out,
		authed: true,
	})
	if err != nil {
		return models.Entry{}, err
	}
	return out.toModel()
}

func (c *HTTPClient) DeleteEntry(ctx context.Context, entryID string) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   entryPath(entryID),
		want:   []int{http.StatusNoContent, http.StatusOK},
		authed: true,
	})
}

func (c *HTTPClient) ApplyMeal(ctx context.Context, date time.Time, mealID, categoryID string) ([]models.Entry, error) {
	var out []entryDTO
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   datePath(date) + "/add-meal",
		in:     applyMealDTO{MealID: mealID, CategoryID: categoryID},
		out:    &out,
		want:   []int{http.StatusCreated, http.StatusOK},
		authed: true,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(out))
	for _, d := range out {
		e, err := d.toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
