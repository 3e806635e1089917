package cli

import (
	"context"
	"os"
	"strings"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for an email and a new password, creates the account and
// opens today's diary.
func (a *App) Register(ctx context.Context) error {
	email, password, err := a.promptCredentials()
	if err != nil {
		return err
	}
	user, err := a.auth.Register(ctx, email, password)
	if err != nil {
		return err
	}
	a.startSession(ctx, email, user)
	return nil
}

// Login prompts for credentials and authenticates against the service.
// There is no offline login: without a reachable service the command fails.
func (a *App) Login(ctx context.Context) error {
	email, password, err := a.promptCredentials()
	if err != nil {
		return err
	}
	user, err := a.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	a.startSession(ctx, email, user)
	return nil
}

// Logout ends the session locally even when the service cannot be told.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.forget()
	printlnFn("Logged out")
	return nil
}

func (a *App) promptCredentials() (string, string, error) {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return "", "", err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return "", "", err
	}
	defer clear(password)
	return email, string(password), nil
}

// startSession drops whatever the previous account left behind and opens
// today's diary for user.
func (a *App) startSession(ctx context.Context, email string, user models.User) {
	a.forget()
	if user.Email == "" {
		user.Email = strings.ToLower(strings.TrimSpace(email))
	}
	a.setUser(user)
	printlnFn("Logged in as", user.Email)

	if err := a.diary.Load(ctx, a.today()); err != nil {
		printlnFn("Could not load diary:", describe(err))
		return
	}
	printlnFn(renderDiary(a.diary.Snapshot()))
}
