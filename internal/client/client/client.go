package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
)

// DiaryService is the remote diary of the authenticated user.
type DiaryService interface {
	GetDiary(ctx context.Context, date time.Time) (models.DiarySnapshot, error)
	CreateEntry(ctx context.Context, date time.Time, e models.NewEntry) (models.Entry, error)
	UpdateEntry(ctx context.Context, entryID string, p models.EntryPatch) (models.Entry, error)
	DeleteEntry(ctx context.Context, entryID string) error
	ApplyMeal(ctx context.Context, date time.Time, mealID, categoryID string) ([]models.Entry, error)
}

// FoodService searches the food databases behind the service.
type FoodService interface {
	SearchFoods(ctx context.Context, query string, limit int) ([]models.FoodItem, error)
}

// AuthService covers session lifecycle endpoints.
type AuthService interface {
	Register(ctx context.Context, email, password string) (models.Credentials, models.User, error)
	Login(ctx context.Context, email, password string) (models.Credentials, models.User, error)
	Refresh(ctx context.Context, refreshToken string) (models.Credentials, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (models.User, error)
	Ping(ctx context.Context) error
}

// Connectivity tells transport failures apart: offline versus anything else.
type Connectivity interface {
	Online() bool
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }
