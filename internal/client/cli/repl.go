package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Day(ctx context.Context, args []string) error
	Show(ctx context.Context) error
	Search(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Meal(ctx context.Context, args []string) error
	Refresh(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register, login, exit"
	helpLoggedIn  = `Available commands:
  day [YYYY-MM-DD|today|yesterday|tomorrow]   open a diary day
  show                                        print the open day
  search [-f] <query>                         search foods (-f skips the cache)
  add <category> <result#|food-id> [qty]      log a food from the last search
  update <entry> <qty> [category]             change servings or move an entry
  delete <entry>                              remove an entry
  meal <meal-id> <category>                   apply a saved meal
  refresh                                     reload the open day
  logout, exit`
)

// runREPL reads commands line by line and dispatches them to a. The prompt
// shows the status from statusFn. Handler errors are printed and the loop
// carries on; it exits on EOF, on "exit" or "quit", or when ctx is done.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("mm> %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		if err := dispatch(ctx, a, cmd, args); err != nil {
			printlnFn("Error:", describe(err))
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			printlnFn(helpLoggedIn)
		} else {
			printlnFn(helpLoggedOut)
		}
		return nil
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx)
	}

	if !a.isLoggedIn() {
		switch cmd {
		case "logout", "day", "show", "search", "s", "add", "update", "delete", "meal", "refresh":
			return errLoginRequired
		}
		printlnFn("Unknown command:", cmd)
		return nil
	}

	switch cmd {
	case "logout":
		return a.Logout(ctx)
	case "day":
		return a.Day(ctx, args)
	case "show":
		return a.Show(ctx)
	case "search", "s":
		return a.Search(ctx, args)
	case "add":
		return a.Add(ctx, args)
	case "update":
		return a.Update(ctx, args)
	case "delete", "rm":
		return a.Delete(ctx, args)
	case "meal":
		return a.Meal(ctx, args)
	case "refresh":
		return a.Refresh(ctx)
	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}
