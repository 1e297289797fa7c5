package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlibekovAA/safecheck/internal/common/bootstrap"
	srv "github.com/AlibekovAA/safecheck/internal/common/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewServerApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "safecheck server: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	log := app.Log

	if app.Config.SeedDemoUser {
		if err := app.SeedDemoUser(ctx); err != nil {
			log.Errorf("%v", err)
		}
	}

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	app.StartBackground(bgCtx)

	serverConfig := srv.DefaultServerConfig(app.Config.HTTPPort)
	serverConfig.BaseContext = bgCtx
	server := srv.NewServer(serverConfig, app.Handler())

	shutdownHooks := []srv.ShutdownHook{
		func(ctx context.Context) error {
			log.Infof("%s: stopping change feed, cleanup and status streams", bootstrap.ServiceName)
			cancelBackground()
			return nil
		},
	}

	if err := srv.StartWithGracefulShutdownAndHooks(ctx, server, log, bootstrap.ServiceName, shutdownHooks); err != nil {
		log.Errorf("%v", err)
		app.Close()
		os.Exit(1)
	}
}
