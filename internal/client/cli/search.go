package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/macrometric/internal/client/search"
	"github.com/dmitrijs2005/macrometric/internal/common"
)

// Search looks up foods: search [-f] <query>. With -f the cache is skipped,
// but cached results are still shown when the service cannot answer.
func (a *App) Search(ctx context.Context, args []string) error {
	force := false
	if len(args) > 0 && args[0] == "-f" {
		force, args = true, args[1:]
	}
	query := strings.Join(args, " ")
	if len([]rune(search.Normalize(query))) < search.MinQueryLength {
		return usage("search [-f] <query of at least 2 characters>")
	}

	run := a.search.Search
	if force {
		run = a.search.Refresh
	}
	res, err := run(ctx, query)
	switch {
	case errors.Is(err, common.ErrOffline):
		return errors.New("you are offline and nothing is cached for this query")
	case errors.Is(err, search.ErrSuperseded):
		return nil
	case err != nil:
		return err
	}
	printlnFn(renderResults(res))
	return nil
}
