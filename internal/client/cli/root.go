package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/AlibekovAA/safecheck/internal/common/constants"
)

// Version is set at build time.
var Version = "dev"

type appKey struct{}

// NewRootCommand builds the command tree. Each command gets a fully opened
// App through its context; the returned cleanup closes it even when the
// command failed.
func NewRootCommand(streams Streams) (*cobra.Command, func() error) {
	opts := &Options{}
	var opened *App

	cleanup := func() error {
		if opened == nil {
			return nil
		}
		app := opened
		opened = nil
		return app.Close()
	}

	root := &cobra.Command{
		Use:   "safecheck",
		Short: "Daily safety check-in",
		Long: `safecheck lets you confirm you are safe on a schedule. If you miss a
check-in, family members watching your status link see that you need attention.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), *opts, streams)
			if err != nil {
				return err
			}
			opened = app
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cleanup()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.Server, "server", defaultServer(), "safecheck server URL (env SAFECHECK_SERVER)")
	flags.StringVar(&opts.DataPath, "data", defaultDataPath(), "local database file (env SAFECHECK_DATA)")
	flags.StringVar(&opts.Session, "session", constants.ClientDefaultSession, "name of the local session to use")
	flags.StringVar(&opts.LogLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newRegisterCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newProfileCommand(),
		newDashboardCommand(),
		newCheckInCommand(),
		newThresholdCommand(),
		newThresholdsCommand(),
		newShareCommand(),
		newWatchCommand(),
		newStatusCommand(),
	)
	return root, cleanup
}

// Execute runs the CLI with the process's terminal.
func Execute(ctx context.Context, args []string) error {
	return ExecuteWith(ctx, StdStreams(), args)
}

func ExecuteWith(ctx context.Context, streams Streams, args []string) error {
	root, cleanup := NewRootCommand(streams)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := cleanup(); err == nil {
		err = cerr
	}
	return err
}

func appFrom(cmd *cobra.Command) *App {
	return cmd.Context().Value(appKey{}).(*App)
}
