package main

import (
	"context"
	"strconv"
	"time"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/config"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/custody"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/engine"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/ledger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/logger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/nft"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/oracle"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/pricer"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/registry"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/state"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/twaml"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/web"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/weekly"

	scheduler "github.com/Tapioca-DAO/tap-token-sub000/internal/epoch"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the tapledger service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Tapledger Core Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Engine Assembly with Dependency Injection ---
	log.Info().Msg("Assembling ledger engine...")

	genesis := time.Now().UTC()
	vault := custody.NewMemoryVault()
	owners := nft.NewMemoryRegistry()

	rates := oracle.NewStaticSource()
	rates.SetRate(config.ValuationOracleData, config.ValuationRate)
	for data, rate := range config.OracleRates {
		rates.SetRate(data, rate)
	}

	locks := registry.New(vault)
	weeks := weekly.New(genesis, config.WeekLength)
	quote := pricer.New(config.RewardDecimals, config.PricingUnit)
	params := twaml.Params{
		MaxDuration:  config.MaxLockDuration,
		DustBps:      config.DustBps,
		MinFactorBps: config.MinFactorBps,
		MaxFactorBps: config.MaxFactorBps,
	}
	posLedger := ledger.New(params, locks, owners, weeks, quote, rates)
	epochs := scheduler.New(config.EpochDuration, config.EpochEmission, rates, config.ValuationOracleData, genesis)

	eng := engine.New(locks, posLedger, epochs, weeks, state.PostgresStore{}, config.MaxWeekSteps, nil)

	// Recover durable state from the latest snapshot, if any
	if err := eng.RecoverFromStore(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recover engine state")
	}

	// --- 3. Start Web Server ---
	webPort := strconv.Itoa(config.WebPort)
	webServer := web.NewWebServer(webPort, eng)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting ledger web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Start Engine Main Loop ---
	log.Info().Str("interval", config.LoopInterval.String()).Msg("Starting engine main loop")

	ctx := context.Background()
	eng.RunLoop(ctx, config.LoopInterval)
}
