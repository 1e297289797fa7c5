package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/status"
	"github.com/AlibekovAA/safecheck/internal/view"
)

func newDashboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Live countdown for your own check-in window",
		Long:  "Shows your status and updates it every second. Type c and Enter to check in, r to reload, q to quit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return appFrom(cmd).runDashboard(cmd.Context())
		},
	}
}

func (a *App) runDashboard(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lw := &lineWriter{w: a.out, tty: a.tty}
	defer lw.finish()

	ctrl := view.NewOwnerController(ownerBackend{client: a.client}, func(s view.OwnerState) {
		lw.show(ownerLine(s))
	}, a.viewConfig())

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx, a.opts.Session) }()

	lines := readLines(ctx, a.in)
	for {
		select {
		case err := <-runErr:
			return friendly(err)

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "c", "checkin", "check-in":
				if err := ctrl.CheckIn(ctx); err != nil {
					lw.note("check-in not recorded: %v", err)
				}
			case "r", "refresh":
				if err := ctrl.Refresh(ctx); err != nil {
					lw.note("reload failed: %v", err)
				}
			case "q", "quit", "exit":
				cancel()
				return friendly(<-runErr)
			}
		}
	}
}

func newCheckInCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checkin",
		Short: "Confirm that you are safe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return appFrom(cmd).runCheckIn(cmd.Context())
		},
	}
}

// runCheckIn goes through the owner controller so the one-shot command
// follows the same enablement rules as the dashboard.
func (a *App) runCheckIn(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loaded := make(chan view.OwnerState, 1)
	ctrl := view.NewOwnerController(ownerBackend{client: a.client}, func(s view.OwnerState) {
		if s.Phase == view.OwnerLoading {
			return
		}
		select {
		case loaded <- s:
		default:
		}
	}, a.viewConfig())

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx, a.opts.Session) }()
	defer func() {
		cancel()
		<-runErr
	}()

	var state view.OwnerState
	select {
	case state = <-loaded:
	case err := <-runErr:
		runErr <- err
		return friendly(err)
	case <-ctx.Done():
		return ctx.Err()
	}

	switch state.Phase {
	case view.OwnerUnauthenticated:
		return errNotSignedIn
	case view.OwnerUnavailable:
		return friendly(state.Err)
	}

	err := ctrl.CheckIn(ctx)
	if errors.Is(err, view.ErrCheckInDisabled) {
		state = ctrl.State()
		a.printf("Already checked in at %s. Next check-in due in %s.",
			lastCheckIn(state.Record.LastCheckInAt), status.FormatDuration(state.Status.Remaining))
		return nil
	}
	if err != nil {
		return friendly(err)
	}

	state = ctrl.State()
	a.printf("Checked in at %s. You are marked safe for the next %s.",
		lastCheckIn(state.Record.LastCheckInAt), status.FormatThreshold(state.Record.TimeoutThreshold))
	return nil
}

func newThresholdCommand() *cobra.Command {
	var seconds int

	cmd := &cobra.Command{
		Use:   "threshold [test|half-day|full-day]",
		Short: "Change how long you may go without checking in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)

			switch {
			case len(args) == 1 && cmd.Flags().Changed("seconds"):
				return errors.New("pass either a preset or --seconds, not both")
			case len(args) == 1:
				p, ok := status.LookupPreset(args[0])
				if !ok {
					return fmt.Errorf("unknown preset %q, run `safecheck thresholds` for the list", args[0])
				}
				seconds = p.Seconds
			case !cmd.Flags().Changed("seconds"):
				return errors.New("pass a preset or --seconds")
			}
			if seconds <= 0 {
				return commonerrors.ErrInvalidThreshold
			}

			res, err := a.client.UpdateThreshold(cmd.Context(), a.opts.Session, seconds)
			if err != nil {
				return friendly(err)
			}
			a.printf("Check-in window set to %s.", status.FormatThreshold(res.TimeoutThreshold))
			return nil
		},
	}
	cmd.Flags().IntVar(&seconds, "seconds", 0, "custom window in seconds")
	return cmd
}

func newThresholdsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "thresholds",
		Short: "List the preset check-in windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			presets, err := a.client.Thresholds(cmd.Context())
			if err != nil {
				return friendly(err)
			}
			for _, p := range presets {
				a.printf("%-10s %-12s %s", p.Key, p.Label, p.Description)
			}
			return nil
		},
	}
}

func newShareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "share",
		Short: "Print the status link to give to family members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			username, err := a.client.Username(cmd.Context(), a.opts.Session)
			if err != nil {
				return friendly(err)
			}
			a.printf("%s", a.client.ShareURL(username))
			return nil
		},
	}
}

// readLines feeds stdin lines to the caller until EOF or ctx ends. The read
// itself cannot be interrupted, so the goroutine may outlive ctx until the
// next line or process exit.
func readLines(ctx context.Context, r *bufio.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}
