package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"cryptoLedgerBot/config"
	"cryptoLedgerBot/internal/adapters/binanceclient"
	"cryptoLedgerBot/internal/adapters/logger"
	"cryptoLedgerBot/internal/adapters/pricecache"
	"cryptoLedgerBot/internal/adapters/sqlite"
	"cryptoLedgerBot/internal/app"
	"cryptoLedgerBot/internal/ledger"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:          cfg.DBPath,
		Logger:          appLogger,
		SettlementAsset: cfg.SettlementAsset,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize ledger repository")
		log.Fatalf("FATAL: Failed to initialize ledger repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing ledger repository")
		}
	}()
	appLogger.Info(ctx, "Ledger repository initialized", map[string]interface{}{"dbPath": cfg.DBPath})

	// 4. Initialize Price Cache and Exchange Client (Binance Adapter)
	prices := pricecache.New()
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		Prices:               prices,
		ScopeMode:            cfg.ScopeMode,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	if err := binanceClient.WarmPrices(ctx, cfg.Symbols); err != nil {
		appLogger.Warn(ctx, "Price warmup failed, valuations degrade until the stream catches up", map[string]interface{}{"error": err.Error()})
	}
	binanceClient.StreamMarkPrices(ctx, cfg.Symbols)

	// 5. Initialize Ledger Core
	rates, err := ledger.NewRateResolver(prices, appLogger, cfg.SettlementAsset)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize rate resolver")
		log.Fatalf("FATAL: Failed to initialize rate resolver: %v", err)
	}
	builder, err := ledger.NewEntryBuilder(repo, rates, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize entry builder")
		log.Fatalf("FATAL: Failed to initialize entry builder: %v", err)
	}

	// 6. Initialize Application Service
	ledgerService, err := app.NewLedgerService(appLogger, builder, repo, repo, binanceClient)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize ledger service")
		log.Fatalf("FATAL: Failed to initialize ledger service: %v", err)
	}
	appLogger.Info(ctx, "Ledger service initialized", map[string]interface{}{"scopeMode": cfg.ScopeMode, "settlementAsset": cfg.SettlementAsset})

	// 7. Start the Service
	if err := ledgerService.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Ledger service exited with error")
		log.Fatalf("FATAL: Ledger service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
