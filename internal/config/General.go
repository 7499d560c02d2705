package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// EpochDuration is the minimum interval between epoch advances.
	EpochDuration time.Duration
	// WeekLength is the accrual period of the weekly reward ledger.
	WeekLength time.Duration
	// MaxLockDuration is the duration at which the magnitude curve saturates.
	MaxLockDuration time.Duration

	// EpochEmission is the reward budget split across pools each epoch.
	EpochEmission sdkmath.Int
	// PricingUnit is the granularity of OTC exercise amounts.
	PricingUnit sdkmath.Int
	// RewardDecimals is the decimal precision of the reward token.
	RewardDecimals int

	// DustBps is the participation threshold in basis points of a pool's
	// total deposits. Below it a lock earns no voting power.
	DustBps int64
	// MinFactorBps and MaxFactorBps bound the twAML discount/multiplier.
	MinFactorBps int64
	MaxFactorBps int64

	// MaxWeekSteps bounds the weekly catch-up work per call.
	MaxWeekSteps int64
	// LoopInterval is the engine ticker period.
	LoopInterval time.Duration

	// ValuationOracleData is the query payload for the epoch valuation oracle.
	ValuationOracleData string
	// ValuationRate is the reward-token USD rate served for ValuationOracleData.
	ValuationRate sdkmath.LegacyDec
	// OracleRates are additional calldata=rate pairs, typically the payment
	// tokens' USD rates, parsed from a comma-separated list.
	OracleRates map[string]sdkmath.LegacyDec

	// WebPort is the listen port of the HTTP API.
	WebPort int
	// LogLevel controls zerolog verbosity.
	LogLevel string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Database variables are required; engine parameters fall back to defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	epochSeconds, err := getEnvAsInt64WithDefault("EPOCH_DURATION_SECONDS", 7*24*3600)
	if err != nil {
		return err
	}
	EpochDuration = time.Duration(epochSeconds) * time.Second

	weekSeconds, err := getEnvAsInt64WithDefault("WEEK_LENGTH_SECONDS", 7*24*3600)
	if err != nil {
		return err
	}
	WeekLength = time.Duration(weekSeconds) * time.Second

	maxLockSeconds, err := getEnvAsInt64WithDefault("MAX_LOCK_DURATION_SECONDS", 4*365*24*3600)
	if err != nil {
		return err
	}
	MaxLockDuration = time.Duration(maxLockSeconds) * time.Second

	EpochEmission, err = getEnvAsInt("EPOCH_EMISSION", "1000000000000000000000000")
	if err != nil {
		return err
	}

	PricingUnit, err = getEnvAsInt("PRICING_UNIT", "1000000000000000000")
	if err != nil {
		return err
	}

	rewardDecimals, err := getEnvAsInt64WithDefault("REWARD_DECIMALS", 18)
	if err != nil {
		return err
	}
	RewardDecimals = int(rewardDecimals)

	DustBps, err = getEnvAsInt64WithDefault("DUST_BPS", 10)
	if err != nil {
		return err
	}

	MinFactorBps, err = getEnvAsInt64WithDefault("MIN_FACTOR_BPS", 5000)
	if err != nil {
		return err
	}

	MaxFactorBps, err = getEnvAsInt64WithDefault("MAX_FACTOR_BPS", 10000)
	if err != nil {
		return err
	}

	MaxWeekSteps, err = getEnvAsInt64WithDefault("MAX_WEEK_STEPS", 52)
	if err != nil {
		return err
	}

	loopSeconds, err := getEnvAsInt64WithDefault("LOOP_INTERVAL_SECONDS", 60)
	if err != nil {
		return err
	}
	LoopInterval = time.Duration(loopSeconds) * time.Second

	ValuationOracleData = getEnvWithDefault("VALUATION_ORACLE_DATA", "reward_token_usd")

	ValuationRate, err = getEnvAsDec("VALUATION_RATE", "1.0")
	if err != nil {
		return err
	}

	OracleRates, err = getEnvAsRates("ORACLE_RATES")
	if err != nil {
		return err
	}

	webPort, err := getEnvAsInt64WithDefault("WEB_PORT", 8080)
	if err != nil {
		return err
	}
	WebPort = int(webPort)

	LogLevel = getEnvWithDefault("LOG_LEVEL", "info")

	// Load database configuration
	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	log.Debug().
		Dur("EpochDuration", EpochDuration).
		Dur("WeekLength", WeekLength).
		Str("EpochEmission", EpochEmission.String()).
		Int64("DustBps", DustBps).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvWithDefault retrieves a string environment variable or a default.
func getEnvWithDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt64WithDefault retrieves an environment variable as an int64,
// falling back to a default when unset. Returns error if invalid.
func getEnvAsInt64WithDefault(key string, fallback int64) (int64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an sdkmath.Int, falling
// back to a default when unset. Returns error if invalid.
func getEnvAsInt(key, fallback string) (sdkmath.Int, error) {
	valueStr := getEnvWithDefault(key, fallback)
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok {
		return sdkmath.ZeroInt(), errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDec retrieves an environment variable as an sdkmath.LegacyDec,
// falling back to a default when unset. Returns error if invalid.
func getEnvAsDec(key, fallback string) (sdkmath.LegacyDec, error) {
	valueStr := getEnvWithDefault(key, fallback)
	value, err := sdkmath.LegacyNewDecFromStr(valueStr)
	if err != nil {
		return sdkmath.LegacyZeroDec(), errors.New("environment variable " + key + " must be a valid decimal, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsRates parses a comma-separated list of calldata=rate pairs, e.g.
// "usdc_usd=1.0,dai_usd=0.999". Unset means no extra rates.
func getEnvAsRates(key string) (map[string]sdkmath.LegacyDec, error) {
	rates := make(map[string]sdkmath.LegacyDec)
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(valueStr, ",") {
		data, rateStr, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || data == "" {
			return nil, errors.New("environment variable " + key + " must hold data=rate pairs, got: " + pair)
		}
		rate, err := sdkmath.LegacyNewDecFromStr(rateStr)
		if err != nil {
			return nil, errors.New("environment variable " + key + " holds an invalid rate for " + data + ": " + rateStr)
		}
		rates[data] = rate
	}
	return rates, nil
}
