package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	touristapp "github.com/tsafe/backend/internal/application/tourist"
	"github.com/tsafe/backend/internal/infrastructure/cache"
	"github.com/tsafe/backend/internal/infrastructure/config"
	"github.com/tsafe/backend/internal/infrastructure/crypto"
	"github.com/tsafe/backend/internal/infrastructure/event"
	"github.com/tsafe/backend/internal/infrastructure/ledger"
	"github.com/tsafe/backend/internal/infrastructure/logger"
	"github.com/tsafe/backend/internal/infrastructure/onchain"
	"github.com/tsafe/backend/internal/infrastructure/persistence"
	"github.com/tsafe/backend/internal/infrastructure/storage"
	"github.com/tsafe/backend/internal/interfaces/cli"
)

func main() {
	cmd := cli.NewRootCommand(connect)
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}

// connect builds a worker and tourist service against the server's
// database and ledger. The worker is never started; commands drive it.
func connect(ctx context.Context, opts *cli.RootOptions) (cli.Operations, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "console", Output: "stderr", TimeFormat: "15:04:05"})
	if err != nil {
		return nil, nil, err
	}

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(level)))
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	sealer, err := crypto.NewPayloadSealer(cfg.Crypto.PayloadSecret, cfg.Crypto.KeyID)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	blobs, err := storage.NewBlobStore(ctx, &cfg.Storage, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}

	chain, err := ledger.New(ctx, cfg.Ledger, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("connect ledger: %w", err)
	}
	workerCfg, err := onchain.ConfigFromSettings(cfg.Worker, cfg.Ledger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	repo := persistence.NewGormTouristRepository(db.DB)
	bus := event.NewTransitionBus(ctx, cfg.Kafka, log)
	worker, err := onchain.NewWorker(repo, chain, workerCfg, log, onchain.WithPublisher(bus))
	if err != nil {
		_ = bus.Close()
		_ = db.Close()
		return nil, nil, err
	}

	service := touristapp.NewService(repo, storage.NewVault(blobs, sealer), cache.NewInMemoryChallengeStore(),
		touristapp.DefaultConfig(), log, touristapp.WithWorker(worker))

	release := func() {
		if err := bus.Close(); err != nil {
			log.Warn("Error closing event sinks", zap.Error(err))
		}
		if closer, ok := chain.(interface{ Close() }); ok {
			closer.Close()
		}
		if err := db.Close(); err != nil {
			log.Warn("Error closing database", zap.Error(err))
		}
		_ = log.Sync()
	}
	return service, release, nil
}
