// Command ordprovider serves Open Resource Discovery documents from a git
// repository or a local directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/ordprovider/internal/config"
	"git.home.luguber.info/inful/ordprovider/internal/daemon"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/observability"
)

// stopTimeout bounds graceful shutdown: in-flight requests get this long to
// drain before the process exits.
const stopTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("ord provider failed", logfields.Error(err))
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cli := &config.CLI{}
	opts := []kong.Option{
		kong.Name("ordprovider"),
		kong.Description("Read-only Open Resource Discovery provider."),
		kong.UsageOnError(),
	}
	if path := config.PathFromArgs(os.Args[1:]); path != "" {
		resolver, err := config.YAMLResolver(path)
		if err != nil {
			return err
		}
		opts = append(opts, kong.Resolvers(resolver))
	}
	parser := kong.Must(cli, opts...)
	_, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cfg, err := config.Resolve(cli)
	if err != nil {
		return err
	}

	logger := observability.SetupLogging(observability.LogConfig{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
	})

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return err
	}

	select {
	case err := <-d.Err():
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	return d.Stop(stopCtx)
}
