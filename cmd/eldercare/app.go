package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/princinho/eldercarebackend/client"
	"github.com/princinho/eldercarebackend/logging"
	"github.com/princinho/eldercarebackend/session"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

// app holds the per-invocation client state.
type app struct {
	server    string
	sessionDB string
	logLevel  string
	jsonOut   bool

	in     *bufio.Reader
	rawIn  io.Reader
	out    io.Writer
	errOut io.Writer

	log   *zap.Logger
	store *session.SQLiteStore
	api   *client.Client
	sess  *session.Manager
}

func defaultSessionDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "eldercare-session.db"
	}
	return filepath.Join(dir, appName, "session.db")
}

func defaultServer() string {
	if v := os.Getenv("ELDERCARE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// open builds the API client and restores the stored session.
func (a *app) open(ctx context.Context) error {
	log, err := logging.New(a.logLevel)
	if err != nil {
		return err
	}
	a.log = log

	if a.sessionDB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(a.sessionDB), 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	a.store, err = session.NewSQLiteStore(ctx, a.sessionDB)
	if err != nil {
		return err
	}

	a.api = client.New(a.server)
	a.sess = session.NewManager(a.api, a.store, session.WithLogger(log))
	a.api.SetTokenSource(a.sess)
	a.sess.Subscribe(func(ev session.Event) {
		if ev.From == session.LoggedIn && ev.To == session.LoggedOut && ev.Message != "" {
			fmt.Fprintf(a.errOut, "%s, run `%s login`\n", ev.Message, appName)
		}
	})

	if _, err := a.sess.Restore(ctx); err != nil {
		a.log.Warn("could not restore session", zap.Error(err))
	}
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.log != nil {
			a.log.Warn("error closing session db", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// readLine prompts on errOut and reads one line of input.
func (a *app) readLine(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no input for %q", strings.TrimSuffix(prompt, ": "))
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads without echo from a terminal, otherwise one line of input.
func (a *app) readSecret(prompt string) (string, error) {
	if f, ok := a.rawIn.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.errOut, prompt)
		pw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := a.readLine(prompt)
	if err != nil {
		return "", err
	}
	return line, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printUser(u *client.User) error {
	if a.jsonOut {
		return a.printJSON(u)
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id:\t%s\n", u.ID)
	fmt.Fprintf(w, "email:\t%s\n", u.Email)
	fmt.Fprintf(w, "name:\t%s\n", u.Name)
	fmt.Fprintf(w, "role:\t%s\n", u.Role)
	if u.Avatar != "" {
		fmt.Fprintf(w, "avatar:\t%s\n", u.Avatar)
	}
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created:\t%s\n", u.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func (a *app) printUsers(page *client.UserPage) error {
	if a.jsonOut {
		return a.printJSON(page.Users)
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE")
	for _, u := range page.Users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d users\n", len(page.Users), page.Total)
	return nil
}
