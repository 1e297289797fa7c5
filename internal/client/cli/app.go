// Package cli implements the safecheck command line client: account
// commands, the owner dashboard and the public status watcher.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/AlibekovAA/safecheck/internal/client/api"
	"github.com/AlibekovAA/safecheck/internal/client/store"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	"github.com/AlibekovAA/safecheck/internal/common/constants"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/view"
)

var errNotSignedIn = errors.New("not signed in, run `safecheck login` first")

type Options struct {
	Server   string
	DataPath string
	Session  string
	LogLevel string
}

// Streams are the terminal the commands talk to. Tests swap them for buffers.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

type App struct {
	opts   Options
	client *api.Client
	store  *store.Store
	clock  clock.Clock
	log    *zap.Logger

	in    *bufio.Reader
	out   io.Writer
	tty   bool
	stdin io.Reader
}

func openApp(ctx context.Context, opts Options, streams Streams) (*App, error) {
	log, err := newLogger(opts.LogLevel, streams.Err)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, opts.DataPath, log)
	if err != nil {
		return nil, err
	}

	client, err := api.New(api.Config{BaseURL: opts.Server, Logger: log}, st.Sessions)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &App{
		opts:   opts,
		client: client,
		store:  st,
		clock:  clock.NewRealClock(),
		log:    log,
		in:     bufio.NewReader(streams.In),
		out:    streams.Out,
		tty:    isTerminal(streams.Out),
		stdin:  streams.In,
	}, nil
}

func (a *App) Close() error {
	_ = a.log.Sync()
	return a.store.Close()
}

func (a *App) viewConfig() view.Config {
	return view.Config{
		FreshAccountGrace: constants.DefaultFreshAccountGrace,
		Clock:             a.clock,
		Logger:            a.log,
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

// friendly rewrites the errors a user can act on.
func friendly(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, commonerrors.ErrUnauthenticated), errors.Is(err, commonerrors.ErrInvalidToken):
		return errNotSignedIn
	case errors.Is(err, commonerrors.ErrServiceUnavailable):
		return fmt.Errorf("server unreachable: %w", err)
	}
	return err
}

func defaultDataPath() string {
	if env := os.Getenv("SAFECHECK_DATA"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return constants.ClientDatabaseFile
	}
	return filepath.Join(home, constants.ClientDataDir, constants.ClientDatabaseFile)
}

func defaultServer() string {
	if env := os.Getenv("SAFECHECK_SERVER"); env != "" {
		return env
	}
	return constants.ClientDefaultServer
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
