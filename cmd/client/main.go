package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/jiucom/internal/client/api"
	"github.com/iudanet/jiucom/internal/client/auth"
	"github.com/iudanet/jiucom/internal/client/cli"
	"github.com/iudanet/jiucom/internal/client/iocli"
	"github.com/iudanet/jiucom/internal/client/notify"
	"github.com/iudanet/jiucom/internal/client/storage/boltdb"
	"github.com/iudanet/jiucom/internal/config"
	"github.com/iudanet/jiucom/internal/logging"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	stdio := iocli.NewStdio()

	cfg, args, err := config.LoadClient(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			cli.PrintUsage(stdio)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	// Получаем команду
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		os.Exit(1)
	}
	command := args[0]

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Ctrl-C отменяет команду (watch завершается штатно)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, command, args[1:], stdio, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, command string, args []string, stdio iocli.IO, logger *slog.Logger) error {
	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Хранилище токенов, при заданной passphrase - с шифрованием
	storeOpts := []auth.StoreOption{auth.WithStoreLogger(logger)}
	if cfg.TokenPassphrase != "" {
		sealer, err := auth.NewSealer(ctx, boltStorage, cfg.TokenPassphrase)
		if err != nil {
			return err
		}
		storeOpts = append(storeOpts, auth.WithSealer(sealer))
	}
	tokens := auth.NewTokenStore(boltStorage, storeOpts...)
	if err := tokens.Load(ctx); err != nil {
		return err
	}

	// Refresh идет через отдельный клиент без TokenSource, чтобы 401 на
	// /auth/refresh не запускал повторный refresh
	refreshClient := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.RefreshTimeout),
		api.WithLogger(logger),
	)
	coordinator := auth.NewCoordinator(tokens, refreshClient,
		auth.WithRefreshTimeout(cfg.RefreshTimeout),
		auth.WithCoordinatorLogger(logger),
	)

	// Основной клиент: bearer из хранилища, refresh+replay при 401
	apiClient := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithTokenSource(coordinator),
		api.WithLogger(logger),
	)

	store := notify.NewStore()
	syncer := notify.NewSyncer(apiClient, store, notify.WithSyncerLogger(logger))

	serviceOpts := []auth.ServiceOption{
		auth.WithSeeder(syncer),
		auth.WithServiceLogger(logger),
		auth.WithRetryDelay(cfg.ReconnectDelay),
	}

	passwords := cli.Passwords{FromFile: cfg.PasswordFile, FromArgs: cfg.Password}
	var app *cli.Cli

	// Live канал нужен только для watch
	if command == "watch" {
		channel := notify.NewChannel(cfg.WSURL, store,
			notify.WithDestination(cfg.Destination),
			notify.WithReconnectDelay(cfg.ReconnectDelay),
			notify.WithHeartBeat(cfg.HeartbeatOutgoing, cfg.HeartbeatIncoming),
			notify.WithChannelLogger(logger),
			notify.WithEventHandler(func(ev notify.Event) { app.PrintEvent(ev) }),
		)
		defer channel.Stop()
		serviceOpts = append(serviceOpts, auth.WithChannel(channel))

		session := auth.NewService(apiClient, tokens, coordinator, serviceOpts...)
		channel.OnAuthError(session.ReconnectChannel)
		app = cli.New(stdio, session, syncer, passwords)
	} else {
		session := auth.NewService(apiClient, tokens, coordinator, serviceOpts...)
		app = cli.New(stdio, session, syncer, passwords)
	}

	return app.Run(ctx, command, args)
}

func printVersion() {
	fmt.Printf("jiucom client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
