package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AlibekovAA/safecheck/internal/client/store"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/status"
	"github.com/AlibekovAA/safecheck/internal/view"
)

func (a *App) publicBackend() publicBackend {
	return publicBackend{client: a.client, cache: a.store.Snapshots, clock: a.clock, log: a.log}
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <username>",
		Short: "Follow someone's status live",
		Long:  "Keeps the status current as the person checks in. Type another username and Enter to switch, q to quit.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appFrom(cmd).runWatch(cmd.Context(), args[0])
		},
	}
}

func (a *App) runWatch(ctx context.Context, username string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lw := &lineWriter{w: a.out, tty: a.tty}
	defer lw.finish()

	if cached, err := a.store.Snapshots.Get(ctx, username); err == nil {
		lw.note("last known (%s): %s", cached.FetchedAt.Local().Format("15:04:05"), a.describeCached(cached))
	}

	ctrl := view.NewPublicController(a.publicBackend(), func(s view.PublicState) {
		lw.show(publicLine(s))
	}, a.viewConfig())

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx, username) }()

	lines := readLines(ctx, a.in)
	for {
		select {
		case err := <-runErr:
			return err

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			name := strings.TrimSpace(line)
			switch strings.ToLower(name) {
			case "":
			case "q", "quit", "exit":
				cancel()
				return <-runErr
			default:
				if err := ctrl.Observe(ctx, name); err != nil {
					return err
				}
			}
		}
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <username>",
		Short: "Print someone's current status once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appFrom(cmd).runStatus(cmd.Context(), args[0])
		},
	}
}

// runStatus prints the server's view and falls back to the last cached one
// when the server cannot be reached.
func (a *App) runStatus(ctx context.Context, username string) error {
	snap, err := a.publicBackend().GetRecordByUsername(ctx, username)
	if errors.Is(err, commonerrors.ErrUserNotFound) {
		return errors.New(publicLine(view.PublicState{Phase: view.PublicNotFound, Username: username}))
	}
	if err != nil {
		cached, cacheErr := a.store.Snapshots.Get(ctx, username)
		if cacheErr != nil {
			return friendly(err)
		}
		a.log.Warn("showing cached status", zap.Error(err))
		a.printf("%s (@%s): %s", cached.DisplayName, cached.Username, a.describeCached(cached))
		a.printf("Server unreachable, showing the status fetched at %s.", cached.FetchedAt.Local().Format("Mon 2 Jan 15:04:05"))
		return nil
	}

	res := status.Evaluate(snap.LastCheckInAt, snap.TimeoutThreshold, snap.ServerTime)
	a.printf("%s (@%s): %s", snap.DisplayName, snap.Username, describe(res))
	a.printf("Last check-in: %s", lastCheckIn(snap.LastCheckInAt))
	a.printf("Window:        %s", status.FormatThreshold(snap.TimeoutThreshold))
	return nil
}

// describeCached evaluates a cached snapshot at the server time it was taken
// plus the local time since it was fetched.
func (a *App) describeCached(c store.CachedSnapshot) string {
	now := c.ServerTime.Add(a.clock.Since(c.FetchedAt))
	return describe(status.Evaluate(c.LastCheckInAt, c.TimeoutThreshold, now))
}
