package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
)

// Result limits accepted by the search endpoint.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

func (c *HTTPClient) SearchFoods(ctx context.Context, query string, limit int) ([]models.FoodItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, common.Invalid("query", "must not be empty")
	}
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}

	var out searchDTO
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/foods/search",
		query:  url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}},
		out:    &out,
		authed: true,
	})
	if err != nil {
		return nil, err
	}

	foods := make([]models.FoodItem, 0, len(out.Results))
	for _, d := range out.Results {
		f, err := d.toModel()
		if err != nil {
			return nil, err
		}
		foods = append(foods, f)
	}
	return foods, nil
}
