// Package search resolves food searches typed by the user: debounced, cached,
// cancellable, and newest-wins.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/macrometric/internal/client/metrics"
	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
	"github.com/dmitrijs2005/macrometric/internal/logging"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultLimit    = 10
	// MinQueryLength is the shortest normalized query that is sent.
	MinQueryLength = 2
)

// ErrSuperseded is returned to a call whose query was replaced by a newer one
// before it produced a result.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Source tells where a result came from.
type Source string

const (
	SourceNone     Source = ""
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Result is what the UI renders. Warning is set (to common.ErrCacheFallback)
// for degraded results; Err is set when there is nothing to show.
type Result struct {
	Query   string
	Foods   []models.FoodItem
	Source  Source
	Warning error
	Err     error
}

// Searcher is the remote food search.
type Searcher interface {
	SearchFoods(ctx context.Context, query string, limit int) ([]models.FoodItem, error)
}

type Connectivity interface {
	Online() bool
}

type Engine struct {
	searcher Searcher
	conn     Connectivity
	cache    *Cache
	debounce time.Duration
	limit    int
	log      logging.Logger

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	inFlight string
	latest   Result
}

type Option func(*Engine)

func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.debounce = d
		}
	}
}

func WithLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func NewEngine(s Searcher, conn Connectivity, cache *Cache, opts ...Option) *Engine {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}
	e := &Engine{
		searcher: s,
		conn:     conn,
		cache:    cache,
		debounce: DefaultDebounce,
		limit:    DefaultLimit,
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize is the cache key of a query.
func Normalize(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Search resolves query after the debounce window. Only the newest call gets
// a result; older calls still waiting return ErrSuperseded.
func (e *Engine) Search(ctx context.Context, query string) (Result, error) {
	return e.run(ctx, query, false)
}

// Refresh is Search without the fresh-cache shortcut: it always asks the
// service, and still falls back to the cached entry when that fails.
func (e *Engine) Refresh(ctx context.Context, query string) (Result, error) {
	return e.run(ctx, query, true)
}

func (e *Engine) run(ctx context.Context, query string, bypassCache bool) (Result, error) {
	key := Normalize(query)

	e.mu.Lock()
	e.gen++
	gen := e.gen
	if utf8.RuneCountInString(key) < MinQueryLength {
		e.cancelInFlightLocked()
		e.latest = Result{Query: key}
		e.mu.Unlock()
		return Result{Query: key}, nil
	}
	e.mu.Unlock()

	if e.debounce > 0 {
		timer := time.NewTimer(e.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return Result{}, ErrSuperseded
	}
	if !bypassCache {
		if foods, ok := e.cache.Fresh(key); ok {
			metrics.SearchCacheHits.Inc()
			res := Result{Query: key, Foods: foods, Source: SourceCache}
			e.latest = res
			e.mu.Unlock()
			return res, nil
		}
	}
	e.cancelInFlightLocked()
	rctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.inFlight = key
	e.mu.Unlock()

	e.log.Debug(ctx, "dispatching food search", "query", key)
	foods, err := e.searcher.SearchFoods(rctx, key, e.limit)

	e.mu.Lock()
	defer e.mu.Unlock()
	cancel()

	if gen != e.gen {
		metrics.SearchRequests.WithLabelValues("superseded").Inc()
		return Result{}, ErrSuperseded
	}
	e.cancel = nil
	e.inFlight = ""

	if err == nil {
		e.cache.Put(key, foods)
		metrics.SearchRequests.WithLabelValues("ok").Inc()
		res := Result{Query: key, Foods: foods, Source: SourceNetwork}
		e.latest = res
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	if cachedFoods, at, ok := e.cache.Lookup(key); ok {
		metrics.SearchRequests.WithLabelValues("fallback").Inc()
		e.log.Warn(ctx, "food search failed, serving cached results", "query", key, "age", time.Since(at).Round(time.Second), "error", err)
		res := Result{Query: key, Foods: cachedFoods, Source: SourceFallback, Warning: common.ErrCacheFallback}
		e.latest = res
		return res, nil
	}

	kind := common.ErrSearchFailed
	if errors.Is(err, common.ErrOffline) || (e.conn != nil && !e.conn.Online()) {
		kind = common.ErrOffline
	}
	metrics.SearchRequests.WithLabelValues(outcome(kind)).Inc()
	res := Result{Query: key, Err: fmt.Errorf("%w: %w", kind, err)}
	e.latest = res
	return res, res.Err
}

func outcome(kind error) string {
	if errors.Is(kind, common.ErrOffline) {
		return "offline"
	}
	return "failed"
}

func (e *Engine) cancelInFlightLocked() {
	if e.cancel != nil {
		e.log.Debug(context.Background(), "canceling in-flight search", "query", e.inFlight)
		e.cancel()
		e.cancel = nil
		e.inFlight = ""
	}
}

// Latest returns the result currently on display.
func (e *Engine) Latest() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// Clear drops the displayed results and supersedes anything pending.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.cancelInFlightLocked()
	e.latest = Result{}
}

// Reset is Clear plus dropping the cache. It runs when the session ends so
// results never leak from one account to the next.
func (e *Engine) Reset() {
	e.Clear()
	e.cache.Purge()
}
