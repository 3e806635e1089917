package testserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/client"
	"github.com/dmitrijs2005/macrometric/internal/client/connectivity"
	"github.com/dmitrijs2005/macrometric/internal/client/credentials"
	"github.com/dmitrijs2005/macrometric/internal/client/diary"
	"github.com/dmitrijs2005/macrometric/internal/client/guard"
	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/client/search"
	"github.com/dmitrijs2005/macrometric/internal/client/storage"
	"github.com/dmitrijs2005/macrometric/internal/common"
	"github.com/dmitrijs2005/macrometric/internal/testserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	email    = "eve@example.com"
	password = "secret123"
)

var today = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

type env struct {
	srv     *testserver.Server
	api     *client.HTTPClient
	creds   *credentials.Store
	cleared atomic.Int32
}

func setup(t *testing.T, opts ...testserver.Option) *env {
	t.Helper()
	ctx := context.Background()

	srv := testserver.New(opts...)
	srv.CreateUser(email, password)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	db, err := storage.InitDatabase(ctx, filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	api, err := client.New(ts.URL, client.WithTimeout(5*time.Second))
	require.NoError(t, err)

	e := &env{srv: srv, api: api, creds: credentials.NewStore(db)}
	api.WrapTransport(func(base http.RoundTripper) http.RoundTripper {
		return guard.New(base, e.creds, api, guard.WithSessionCleared(func() { e.cleared.Add(1) }))
	})

	pair, _, err := api.Login(ctx, email, password)
	require.NoError(t, err)
	require.NoError(t, e.creds.Save(ctx, pair))
	return e
}

func TestE2E_ExpiredAccessIsRenewedAndReplayed(t *testing.T) {
	e := setup(t)
	before, _ := e.creds.Current()
	e.srv.ExpireAccessTokens()

	snap, err := e.api.GetDiary(context.Background(), today)
	require.NoError(t, err)
	assert.Len(t, snap.Categories, 4)

	assert.Equal(t, 2, e.srv.Calls(testserver.RouteDiary))
	assert.Equal(t, 1, e.srv.Calls(testserver.RouteRefresh))

	after, ok := e.creds.Current()
	require.True(t, ok)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken)
	assert.Zero(t, e.cleared.Load())
}

func TestE2E_RejectedRenewalEndsSession(t *testing.T) {
	e := setup(t)
	e.srv.ExpireAccessTokens()
	e.srv.RevokeRefreshTokens()

	_, err := e.api.GetDiary(context.Background(), today)
	require.ErrorIs(t, err, common.ErrSessionExpired)

	assert.Equal(t, 1, e.srv.Calls(testserver.RouteDiary))
	assert.Equal(t, 1, e.srv.Calls(testserver.RouteRefresh))
	_, ok := e.creds.Current()
	assert.False(t, ok)
	assert.EqualValues(t, 1, e.cleared.Load())

	// nothing left to renew with: later calls go out unauthenticated
	_, err = e.api.GetDiary(context.Background(), today)
	require.ErrorIs(t, err, common.ErrAuthExpired)
	assert.Equal(t, 1, e.srv.Calls(testserver.RouteRefresh))
}

func TestE2E_ConcurrentRequestsShareOneRenewal(t *testing.T) {
	e := setup(t)
	e.srv.ExpireAccessTokens()

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.api.GetDiary(context.Background(), today)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	// refresh tokens rotate, so a second renewal with the spent token would
	// have been refused and ended the session
	assert.Equal(t, 1, e.srv.Calls(testserver.RouteRefresh))
	assert.Zero(t, e.cleared.Load())
}

func TestE2E_DiaryRoundTrip(t *testing.T) {
	e := setup(t, testserver.WithGoals(testserver.Goals{Calories: 2000, ProteinG: 120}))
	oats := e.srv.AddFood(testserver.Food{Name: "Oats", Calories: 150, ProteinG: 5, CarbsG: 27, FatG: 3, ServingSize: 40, ServingUnit: "g"})
	rice := e.srv.AddFood(testserver.Food{Name: "Rice", Calories: 200, CarbsG: 45, ServingSize: 1, ServingUnit: "cup"})
	e.srv.AddMeal("lunch-bowl", testserver.MealItem{FoodID: rice.ID, Quantity: 2})

	ctx := context.Background()
	store := diary.NewStore(e.api)
	require.NoError(t, store.Load(ctx, today))
	snap := store.Snapshot()
	require.NotNil(t, snap.Goals)
	assert.Equal(t, 2000, snap.Goals.Calories)

	found, err := e.api.SearchFoods(ctx, "oat", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, oats.ID, found[0].ID)

	add, err := store.AddEntry(ctx, "breakfast", found[0], 1)
	require.NoError(t, err)
	assert.Equal(t, 150.0, store.Snapshot().Totals.Calories)

	egg := models.FoodItem{ID: "usda:1123", Source: models.SourceUSDA, Name: "Egg", Calories: 72, ProteinG: 6}
	inline, err := store.AddEntry(ctx, "breakfast", egg, 2)
	require.NoError(t, err)

	meal, err := store.ApplyMeal(ctx, "lunch-bowl", "lunch")
	require.NoError(t, err)

	for _, m := range []*diary.Mutation{add, inline, meal} {
		require.NoError(t, m.Wait(ctx))
	}
	snap = store.Snapshot()
	assert.Equal(t, 150.0+144+400, snap.Totals.Calories)
	assert.Equal(t, 3, e.srv.EntryCount(email, "2026-05-01"))

	del, err := store.DeleteEntry(ctx, add.Entry().ID)
	require.NoError(t, err)
	require.NoError(t, del.Wait(ctx))
	assert.Equal(t, 144.0+400, store.Snapshot().Totals.Calories)
	assert.Equal(t, models.Sum(store.Snapshot().Categories), store.Snapshot().Totals)
}

func TestE2E_DeletedFoodPlaceholder(t *testing.T) {
	e := setup(t)
	oats := e.srv.AddFood(testserver.Food{Name: "Oats", Calories: 150})
	ctx := context.Background()

	_, err := e.api.CreateEntry(ctx, today, models.NewEntry{CategoryID: "breakfast", FoodID: "oats-missing", Quantity: 1})
	require.ErrorIs(t, err, common.ErrNotFound)

	created, err := e.api.CreateEntry(ctx, today, models.NewEntry{CategoryID: "breakfast", FoodID: oats.ID, Quantity: 1})
	require.NoError(t, err)

	e.srv.RemoveFood(oats.ID)
	snap, err := e.api.GetDiary(ctx, today)
	require.NoError(t, err)
	got, _, ok := snap.FindEntry(created.ID)
	require.True(t, ok)
	assert.Equal(t, testserver.DeletedFoodName, got.Food.Name)
	assert.Zero(t, snap.Totals.Calories)
}

func TestE2E_ValidationDetailIsDecoded(t *testing.T) {
	e := setup(t)
	_, err := e.api.CreateEntry(context.Background(), today,
		models.NewEntry{CategoryID: "breakfast", Food: &models.FoodItem{Name: "x"}, Quantity: 0})

	var se *common.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
	assert.Contains(t, se.Detail, "greater than 0")
}

func TestE2E_SearchFallsBackToCache(t *testing.T) {
	e := setup(t)
	e.srv.AddFood(testserver.Food{Name: "Greek Yogurt", Calories: 100})
	ctx := context.Background()

	engine := search.NewEngine(e.api, nil, search.NewCache(search.DefaultTTL), search.WithDebounce(0))
	res, err := engine.Search(ctx, "yogurt")
	require.NoError(t, err)
	require.Len(t, res.Foods, 1)
	assert.Equal(t, search.SourceNetwork, res.Source)

	res, err = engine.Search(ctx, "YOGURT ")
	require.NoError(t, err)
	assert.Equal(t, search.SourceCache, res.Source)
	assert.Equal(t, 1, e.srv.Calls(testserver.RouteSearch))

	e.srv.FailNext(testserver.RouteSearch, http.StatusServiceUnavailable)
	res, err = engine.Refresh(ctx, "yogurt")
	require.NoError(t, err)
	assert.Equal(t, search.SourceFallback, res.Source)
	assert.ErrorIs(t, res.Warning, common.ErrCacheFallback)
	assert.Len(t, res.Foods, 1)
}

func TestE2E_ConnectivityProbe(t *testing.T) {
	e := setup(t)
	mon := connectivity.New(e.api, time.Minute)
	ctx := context.Background()

	assert.True(t, mon.Probe(ctx))
	e.srv.SetHealthy(false)
	assert.False(t, mon.Probe(ctx))
	assert.False(t, mon.Online())
	e.srv.SetHealthy(true)
	assert.True(t, mon.Probe(ctx))
}
