package testserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

type contextKey string

const userIDKey contextKey = "userID"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type fieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

func writeFieldError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]fieldError{
		"detail": {{Loc: []string{"body", field}, Msg: msg}},
	})
}

// route counts the call and serves a queued failure, if any.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		var status int
		if q := s.failures[name]; len(q) > 0 {
			status, s.failures[name] = q[0], q[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		h(w, r)
	}
}

// authed validates the bearer access token.
func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims, err := s.parse(token, kindAccess)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		s.mu.Lock()
		_, known := s.byID[claims.Subject]
		current := claims.Generation == s.generation
		s.mu.Unlock()
		if !known || !current {
			writeError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
		h(w, r.WithContext(ctx))
	}
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// ---- auth ----

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type userResponse struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

type authResponse struct {
	tokenResponse
	userResponse
}

func toUserResponse(u *user) userResponse {
	return userResponse{ID: u.id, Email: u.email, OnboardingCompleted: u.onboarding}
}

// pairLocked issues a fresh token pair for u.
func (s *Server) pairLocked(u *user) (tokenResponse, error) {
	access, err := s.issue(u.id, kindAccess, s.generation, s.accessTTL)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, err := s.issue(u.id, kindRefresh, 0, s.refreshTTL)
	if err != nil {
		return tokenResponse{}, err
	}
	s.refresh[refresh] = u.id
	return tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.healthy
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeFieldError(w, "email", "value is not a valid email address")
		return
	}
	if len(req.Password) < 8 {
		writeFieldError(w, "password", "String should have at least 8 characters")
		return
	}
	if len(req.Password) > 72 {
		writeFieldError(w, "password", "String should have at most 72 characters")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[strings.ToLower(req.Email)]; exists {
		writeError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	u, err := s.createUserLocked(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pair, err := s.pairLocked(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{pair, toUserResponse(u)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(req.Email)]
	if !ok || !u.checkPassword(req.Password) {
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	pair, err := s.pairLocked(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, authResponse{pair, toUserResponse(u)})
}

// handleRefresh rotates the pair: the presented refresh token is spent.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.parse(req.RefreshToken, kindRefresh); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.refresh[req.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(s.refresh, req.RefreshToken)
	pair, err := s.pairLocked(s.byID[uid])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	s.mu.Lock()
	for token, owner := range s.refresh {
		if owner == uid {
			delete(s.refresh, token)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := s.byID[userID(r)]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ---- diary ----

type entryResponse struct {
	ID       string  `json:"id"`
	Food     Food    `json:"food"`
	Quantity float64 `json:"quantity"`
}

type categoryResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DisplayOrder int             `json:"display_order"`
	IsDefault    bool            `json:"is_default"`
	Entries      []entryResponse `json:"entries"`
}

type diaryResponse struct {
	Date       string             `json:"date"`
	Categories []categoryResponse `json:"categories"`
	Totals     Goals              `json:"totals"`
	Goals      *Goals             `json:"goals"`
}

func parseDate(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "date")
	if _, err := time.Parse(dateLayout, raw); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid date format, expected YYYY-MM-DD")
		return "", false
	}
	return raw, true
}

func (s *Server) entryResponseLocked(e entry) entryResponse {
	f, ok := s.foods[e.foodID]
	if !ok {
		f = Food{ID: e.foodID, Name: DeletedFoodName, Source: "custom", ServingUnit: "serving"}
	}
	return entryResponse{ID: e.id, Food: f, Quantity: e.quantity}
}

func (s *Server) handleGetDiary(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := diaryResponse{Date: date, Goals: s.goals, Categories: make([]categoryResponse, 0, len(defaultCategories))}
	day := s.dayLocked(userID(r), date)
	for i, c := range defaultCategories {
		cat := categoryResponse{ID: c.id, Name: c.name, DisplayOrder: i, IsDefault: true, Entries: []entryResponse{}}
		for _, e := range day {
			if e.categoryID != c.id {
				continue
			}
			er := s.entryResponseLocked(e)
			cat.Entries = append(cat.Entries, er)
			resp.Totals.Calories += er.Food.Calories * e.quantity
			resp.Totals.ProteinG += er.Food.ProteinG * e.quantity
			resp.Totals.CarbsG += er.Food.CarbsG * e.quantity
			resp.Totals.FatG += er.Food.FatG * e.quantity
		}
		resp.Categories = append(resp.Categories, cat)
	}
	writeJSON(w, http.StatusOK, resp)
}

type createEntryRequest struct {
	CategoryID string  `json:"category_id"`
	FoodID     *string `json:"food_id"`
	Food       *Food   `json:"food"`
	Quantity   float64 `json:"quantity"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(w, r)
	if !ok {
		return
	}
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity <= 0 {
		writeFieldError(w, "quantity", "Input should be greater than 0")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !validCategory(req.CategoryID) {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}

	var foodID string
	switch {
	case req.FoodID != nil:
		foodID = "custom:" + strings.TrimPrefix(*req.FoodID, "custom:")
		if _, ok := s.foods[foodID]; !ok {
			writeError(w, http.StatusNotFound, "Food not found")
			return
		}
	case req.Food != nil:
		if strings.TrimSpace(req.Food.Name) == "" {
			writeFieldError(w, "food.name", "Field required")
			return
		}
		f := *req.Food
		s.nextID++
		f.ID = "custom:" + strconv.Itoa(s.nextID)
		f.Source = "custom"
		s.foods[f.ID] = f
		foodID = f.ID
	default:
		writeError(w, http.StatusBadRequest, "Either food_id or food must be provided")
		return
	}

	uid := userID(r)
	e := entry{id: s.allocID("entry"), categoryID: req.CategoryID, foodID: foodID, quantity: req.Quantity}
	s.setDayLocked(uid, date, append(s.dayLocked(uid, date), e))
	writeJSON(w, http.StatusCreated, s.entryResponseLocked(e))
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity   *float64 `json:"quantity"`
		CategoryID *string  `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		writeFieldError(w, "quantity", "Input should be greater than 0")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid := userID(r)
	date, idx, ok := s.findEntryLocked(uid, chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Entry not found")
		return
	}
	if req.CategoryID != nil && !validCategory(*req.CategoryID) {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}

	day := s.dayLocked(uid, date)
	e := day[idx]
	if req.Quantity != nil {
		e.quantity = *req.Quantity
	}
	if req.CategoryID != nil {
		e.categoryID = *req.CategoryID
	}
	day[idx] = e
	writeJSON(w, http.StatusOK, s.entryResponseLocked(e))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := userID(r)
	date, idx, ok := s.findEntryLocked(uid, chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Entry not found")
		return
	}
	day := s.dayLocked(uid, date)
	s.setDayLocked(uid, date, append(day[:idx:idx], day[idx+1:]...))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApplyMeal(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(w, r)
	if !ok {
		return
	}
	var req struct {
		MealID     string `json:"meal_id"`
		CategoryID string `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.meals[req.MealID]
	if !ok {
		writeError(w, http.StatusNotFound, "Meal not found")
		return
	}
	if !validCategory(req.CategoryID) {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}

	uid := userID(r)
	day := s.dayLocked(uid, date)
	created := make([]entryResponse, 0, len(items))
	for _, it := range items {
		e := entry{id: s.allocID("entry"), categoryID: req.CategoryID, foodID: it.FoodID, quantity: it.Quantity}
		day = append(day, e)
		created = append(created, s.entryResponseLocked(e))
	}
	s.setDayLocked(uid, date, day)
	writeJSON(w, http.StatusCreated, created)
}

// ---- foods ----

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q == "" {
		writeFieldError(w, "q", "Field required")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			writeFieldError(w, "limit", "Input should be between 1 and 50")
			return
		}
		limit = n
	}

	s.mu.Lock()
	results := make([]Food, 0, limit)
	for _, f := range s.foods {
		if strings.Contains(strings.ToLower(f.Name), q) {
			results = append(results, f)
		}
	}
	s.mu.Unlock()

	sortFoods(results)
	if len(results) > limit {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, map[string][]Food{"results": results})
}
