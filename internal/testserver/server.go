// Package testserver is an in-memory implementation of the Macrometric REST
// API. It speaks the same wire format as the real service and adds controls
// for tests: expiring tokens, injecting failures and counting calls.
package testserver

import (
	"cmp"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

// Route names accepted by Calls and FailNext.
const (
	RouteHealth      = "health"
	RouteRegister    = "auth.register"
	RouteLogin       = "auth.login"
	RouteRefresh     = "auth.refresh"
	RouteLogout      = "auth.logout"
	RouteMe          = "auth.me"
	RouteDiary       = "diary.get"
	RouteCreateEntry = "entry.create"
	RouteUpdateEntry = "entry.update"
	RouteDeleteEntry = "entry.delete"
	RouteApplyMeal   = "meal.apply"
	RouteSearch      = "foods.search"
)

// DeletedFoodName is shown for entries whose food no longer exists.
const DeletedFoodName = "[Deleted Food]"

// Food is a catalog item. IDs carry their source: "custom:<n>" or "usda:<n>".
type Food struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       *string `json:"brand"`
	Source      string  `json:"source"`
	ServingSize float64 `json:"serving_size"`
	ServingUnit string  `json:"serving_unit"`
	Calories    float64 `json:"calories"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
}

// MealItem is one food of a saved meal.
type MealItem struct {
	FoodID   string
	Quantity float64
}

// Goals are returned with every diary day when set.
type Goals struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type user struct {
	id         string
	email      string
	hash       []byte
	onboarding bool
}

type entry struct {
	id         string
	categoryID string
	foodID     string
	quantity   float64
}

var defaultCategories = []struct{ id, name string }{
	{"breakfast", "Breakfast"},
	{"lunch", "Lunch"},
	{"dinner", "Dinner"},
	{"snacks", "Snacks"},
}

type Server struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu         sync.Mutex
	users      map[string]*user // by email
	byID       map[string]*user
	refresh    map[string]string // live refresh token -> user id
	generation int
	entries    map[string]map[string][]entry // user -> date -> entries
	foods      map[string]Food
	meals      map[string][]MealItem
	goals      *Goals
	nextID     int
	healthy    bool
	calls      map[string]int
	failures   map[string][]int
}

type Option func(*Server)

func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithGoals(g Goals) Option {
	return func(s *Server) { s.goals = &g }
}

func New(opts ...Option) *Server {
	s := &Server{
		secret:     []byte("testserver-secret"),
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		now:        time.Now,
		users:      make(map[string]*user),
		byID:       make(map[string]*user),
		refresh:    make(map[string]string),
		entries:    make(map[string]map[string][]entry),
		foods:      make(map[string]Food),
		meals:      make(map[string][]MealItem),
		healthy:    true,
		calls:      make(map[string]int),
		failures:   make(map[string][]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router serving the API under /api/v1 and the
// health endpoint at /health.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.route(RouteHealth, s.handleHealth))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.route(RouteRegister, s.handleRegister))
		r.Post("/auth/login", s.route(RouteLogin, s.handleLogin))
		r.Post("/auth/refresh", s.route(RouteRefresh, s.handleRefresh))

		r.Group(func(r chi.Router) {
			r.Post("/auth/logout", s.route(RouteLogout, s.authed(s.handleLogout)))
			r.Get("/auth/me", s.route(RouteMe, s.authed(s.handleMe)))

			r.Get("/diary/{date}", s.route(RouteDiary, s.authed(s.handleGetDiary)))
			r.Post("/diary/{date}/entries", s.route(RouteCreateEntry, s.authed(s.handleCreateEntry)))
			r.Post("/diary/{date}/add-meal", s.route(RouteApplyMeal, s.authed(s.handleApplyMeal)))
			r.Put("/diary/entries/{id}", s.route(RouteUpdateEntry, s.authed(s.handleUpdateEntry)))
			r.Delete("/diary/entries/{id}", s.route(RouteDeleteEntry, s.authed(s.handleDeleteEntry)))

			r.Get("/foods/search", s.route(RouteSearch, s.authed(s.handleSearch)))
		})
	})
	return r
}

// ---- test controls ----

// CreateUser registers an account directly and returns its id. It panics
// if the password cannot be hashed.
func (s *Server) CreateUser(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.createUserLocked(email, password)
	if err != nil {
		panic(err)
	}
	return u.id
}

// createUserLocked stores only the bcrypt hash of password. MinCost keeps
// test logins fast.
func (s *Server) createUserLocked(email, password string) (*user, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	s.nextID++
	u := &user{id: fmt.Sprintf("user-%d", s.nextID), email: strings.ToLower(email), hash: hash}
	s.users[u.email] = u
	s.byID[u.id] = u
	return u, nil
}

func (u *user) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.hash, []byte(password)) == nil
}

// AddFood puts f in the catalog. An empty ID is assigned from Source.
func (s *Server) AddFood(f Food) Food {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Source == "" {
		f.Source = "custom"
	}
	if f.ID == "" {
		s.nextID++
		f.ID = fmt.Sprintf("%s:%d", f.Source, s.nextID)
	}
	s.foods[f.ID] = f
	return f
}

// RemoveFood deletes a catalog item; diary entries referring to it turn into
// placeholders.
func (s *Server) RemoveFood(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.foods, id)
}

func (s *Server) AddMeal(id string, items ...MealItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meals[id] = items
}

// ExpireAccessTokens makes every access token issued so far fail with 401.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeRefreshTokens makes every outstanding refresh token unusable.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// FailNext makes the next len(statuses) calls of route answer with the given
// statuses before any other processing.
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], statuses...)
}

func (s *Server) SetHealthy(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = ok
}

// Calls is the number of requests route received, including rejected ones.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// EntryCount is the number of entries the user logged on date (YYYY-MM-DD).
func (s *Server) EntryCount(email, date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return 0
	}
	return len(s.entries[u.id][date])
}

// ---- internals ----

func (s *Server) allocID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *Server) dayLocked(userID, date string) []entry {
	return s.entries[userID][date]
}

func (s *Server) setDayLocked(userID, date string, es []entry) {
	days, ok := s.entries[userID]
	if !ok {
		days = make(map[string][]entry)
		s.entries[userID] = days
	}
	days[date] = es
}

// findEntryLocked locates an entry of userID on any day.
func (s *Server) findEntryLocked(userID, id string) (date string, idx int, ok bool) {
	for _, d := range slices.Sorted(maps.Keys(s.entries[userID])) {
		for i, e := range s.entries[userID][d] {
			if e.id == id {
				return d, i, true
			}
		}
	}
	return "", 0, false
}

func validCategory(id string) bool {
	for _, c := range defaultCategories {
		if c.id == id {
			return true
		}
	}
	return false
}

func sortFoods(fs []Food) {
	slices.SortFunc(fs, func(a, b Food) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
}
