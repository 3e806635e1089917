package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/client"
	"github.com/dmitrijs2005/macrometric/internal/client/config"
	"github.com/dmitrijs2005/macrometric/internal/client/connectivity"
	"github.com/dmitrijs2005/macrometric/internal/client/credentials"
	"github.com/dmitrijs2005/macrometric/internal/client/diary"
	"github.com/dmitrijs2005/macrometric/internal/client/guard"
	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/client/search"
	"github.com/dmitrijs2005/macrometric/internal/client/services"
	"github.com/dmitrijs2005/macrometric/internal/client/storage"
	"github.com/dmitrijs2005/macrometric/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config  *config.Config
	log     logging.Logger
	db      *sql.DB
	auth    services.AuthService
	diary   *diary.Store
	search  *search.Engine
	monitor *connectivity.Monitor
	reader  *bufio.Reader
	now     func() time.Time

	mu   sync.Mutex
	user models.User
}

// onlineFunc adapts a closure to client.Connectivity so the HTTP client can
// consult the monitor that is built on top of it.
type onlineFunc func() bool

func (f onlineFunc) Online() bool { return f() }

// NewApp opens local storage and wires the API client, the credential guard
// and the diary and search components.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Discard()
	}

	db, err := storage.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	a := &App{
		config: cfg,
		log:    log,
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		now:    time.Now,
	}

	api, err := client.New(cfg.ServerURL,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(log),
		client.WithDebug(cfg.HTTPDebug),
		client.WithConnectivity(onlineFunc(func() bool { return a.monitor.Online() })),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	creds := credentials.NewStore(db)
	api.WrapTransport(func(base http.RoundTripper) http.RoundTripper {
		return guard.New(base, creds, api,
			guard.WithLogger(log),
			guard.WithSessionCleared(a.onSessionCleared),
		)
	})

	a.monitor = connectivity.New(api, cfg.OnlineCheckInterval,
		connectivity.WithLogger(log),
		connectivity.WithOnChange(a.onConnectivityChange),
	)
	a.auth = services.NewAuthService(api, creds, log)
	a.diary = diary.NewStore(api, diary.WithLogger(log))
	a.search = search.NewEngine(api, a.monitor, search.NewCache(cfg.SearchCacheTTL),
		search.WithDebounce(cfg.SearchDebounce),
		search.WithLimit(cfg.SearchLimit),
		search.WithLogger(log),
	)
	return a, nil
}

// Run restores a persisted session, starts the connectivity watcher and
// blocks in the REPL until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go a.monitor.Run(watchCtx)

	printlnFn("Welcome to Macrometric (type 'help' for commands)")
	a.restore(ctx)

	runREPL(ctx, a, a.getStatus, a.reader)

	qctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.diary.Quiesce(qctx); err != nil {
		a.log.Warn(ctx, "unsynced diary changes on exit", "pending", a.diary.Pending())
	}
	return nil
}

func (a *App) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) restore(ctx context.Context) {
	user, ok, err := a.auth.Restore(ctx)
	if err != nil {
		a.log.Warn(ctx, "could not restore session", "error", err)
	}
	if !ok {
		return
	}
	a.setUser(user)
	if user.Email != "" {
		printlnFn("Welcome back,", user.Email)
	} else {
		printlnFn("Welcome back (offline)")
	}
	if err := a.diary.Load(ctx, a.today()); err != nil {
		printlnFn("Could not load diary:", describe(err))
	}
}

func (a *App) today() time.Time { return models.Day(a.now()) }

func (a *App) isLoggedIn() bool { return a.auth.Authenticated() }

func (a *App) setUser(u models.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = u
}

func (a *App) currentUser() models.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

// forget drops everything tied to the previous account.
func (a *App) forget() {
	a.search.Reset()
	a.diary.Reset()
	a.setUser(models.User{})
}

func (a *App) onSessionCleared() {
	a.forget()
	printlnFn("Your session has expired, please log in again.")
}

func (a *App) onConnectivityChange(online bool) {
	if online {
		printlnFn("Back online")
	} else {
		printlnFn("Connection lost, working offline")
	}
}

// getStatus renders the REPL prompt status: who is logged in, connectivity
// and the number of unsynced diary changes.
func (a *App) getStatus() string {
	if !a.isLoggedIn() {
		return "not logged in"
	}
	var parts []string
	if u := a.currentUser(); u.Email != "" {
		parts = append(parts, u.Email)
	}
	if a.diary.Loaded() {
		parts = append(parts, dayLabel(a.diary.Date(), a.today()))
	}
	if a.monitor.Online() {
		parts = append(parts, "online")
	} else {
		parts = append(parts, "offline")
	}
	if n := a.diary.Pending(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", n))
	}
	return strings.Join(parts, ", ")
}
