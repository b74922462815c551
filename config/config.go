// Package config loads eventrader's backtesting configuration from flags,
// environment variables, and an optional .env file, adapted from the
// cobra+viper flag-binding pattern in cuemby-warren/cmd/warren/main.go and
// enriched with godotenv for local development per the cloudmanic-massive
// manifest's pairing of the two.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds every knob a backtesting run needs.
type Config struct {
	// CSVPath is the historical bar file to replay (spec §6 bar CSV format).
	CSVPath string
	Pair    string
	Period  time.Duration

	StartingBalances map[string]decimal.Decimal

	MakerFeeRate decimal.Decimal
	TakerFeeRate decimal.Decimal

	LiquidityVolumeFraction decimal.Decimal
	LiquiditySlippageFactor decimal.Decimal

	MarginEnabled      bool
	MarginInterestRate decimal.Decimal

	StrictMode bool

	LogLevel string
	LogJSON  bool
}

// BindFlags registers every Config flag on cmd's flag set, with defaults
// matching the exchange's own defaults (fees.DefaultSchedule,
// liquidity.NewDefault).
func BindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("csv", "", "path to the historical bar CSV file to replay")
	flags.String("pair", "", "trading pair, e.g. BTC/USD")
	flags.Duration("period", time.Minute, "bar period")
	flags.StringToString("balance", nil, "starting balance, symbol=amount (repeatable)")
	flags.String("maker-fee", "0.001", "maker fee rate, as a fraction")
	flags.String("taker-fee", "0.001", "taker fee rate, as a fraction")
	flags.String("liquidity-volume-fraction", "0.25", "fraction of bar volume fillable per bar")
	flags.String("liquidity-slippage-factor", "0", "slippage curve steepness, 0 disables slippage")
	flags.Bool("margin", false, "enable margin lending")
	flags.String("margin-interest-rate", "0.0001", "margin interest rate per accrual tick, as a fraction")
	flags.Bool("strict", false, "promote handler/order errors to fatal instead of logging and continuing")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "emit logs as JSON instead of console format")

	_ = viper.BindPFlags(flags)
}

// Load reads environment variables (optionally from a .env file at
// envFile, if it exists) and cobra flags into a Config. Flags take
// precedence over the environment, which takes precedence over defaults —
// viper's own precedence order.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	viper.SetEnvPrefix("EVENTRADER")
	viper.AutomaticEnv()

	cfg := Config{
		CSVPath:       viper.GetString("csv"),
		Pair:          viper.GetString("pair"),
		Period:        viper.GetDuration("period"),
		StrictMode:    viper.GetBool("strict"),
		LogLevel:      viper.GetString("log-level"),
		LogJSON:       viper.GetBool("log-json"),
		MarginEnabled: viper.GetBool("margin"),
	}

	var err error
	if cfg.MakerFeeRate, err = parseDecimal("maker-fee"); err != nil {
		return Config{}, err
	}
	if cfg.TakerFeeRate, err = parseDecimal("taker-fee"); err != nil {
		return Config{}, err
	}
	if cfg.LiquidityVolumeFraction, err = parseDecimal("liquidity-volume-fraction"); err != nil {
		return Config{}, err
	}
	if cfg.LiquiditySlippageFactor, err = parseDecimal("liquidity-slippage-factor"); err != nil {
		return Config{}, err
	}
	if cfg.MarginInterestRate, err = parseDecimal("margin-interest-rate"); err != nil {
		return Config{}, err
	}

	cfg.StartingBalances = make(map[string]decimal.Decimal)
	for symbol, raw := range viper.GetStringMapString("balance") {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: starting balance %s=%q: %w", symbol, raw, err)
		}
		cfg.StartingBalances[symbol] = amount
	}

	if cfg.CSVPath == "" {
		return Config{}, fmt.Errorf("config: --csv is required")
	}
	if cfg.Pair == "" {
		return Config{}, fmt.Errorf("config: --pair is required")
	}
	if cfg.Period <= 0 {
		return Config{}, fmt.Errorf("config: --period must be positive")
	}

	return cfg, nil
}

func parseDecimal(key string) (decimal.Decimal, error) {
	raw := viper.GetString(key)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: %s=%q: %w", key, raw, err)
	}
	return d, nil
}
