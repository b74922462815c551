// Command eventrader runs a strategy against historical bar data using the
// backtesting dispatcher and exchange (spec §1). Wiring follows the
// cobra root-command pattern from cuemby-warren/cmd/warren/main.go.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/colinmarc/eventrader/balances"
	"github.com/colinmarc/eventrader/config"
	"github.com/colinmarc/eventrader/dispatcher"
	"github.com/colinmarc/eventrader/exchange"
	"github.com/colinmarc/eventrader/fees"
	"github.com/colinmarc/eventrader/lending"
	"github.com/colinmarc/eventrader/liquidity"
	"github.com/colinmarc/eventrader/logging"
	"github.com/colinmarc/eventrader/matching"
	"github.com/colinmarc/eventrader/source"
	"github.com/colinmarc/eventrader/strategy"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
	envFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "eventrader",
	Short:   "eventrader replays historical bars through a strategy against a simulated exchange",
	Version: Version,
	RunE:    runBacktest,
}

func init() {
	config.BindFlags(rootCmd)
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file to load before flags/environment")
	rootCmd.Flags().String("strategy", "ma_crossover", "strategy to run: ma_crossover, grid")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:      logging.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	f, err := os.Open(cfg.CSVPath)
	if err != nil {
		return fmt.Errorf("eventrader: opening %s: %w", cfg.CSVPath, err)
	}
	defer f.Close()

	src, err := source.NewCSVBarSource(f, cfg.Pair, cfg.Period)
	if err != nil {
		return fmt.Errorf("eventrader: parsing bar csv: %w", err)
	}

	disp := dispatcher.NewBacktesting(cfg.StrictMode)
	if err := disp.AddSource(src); err != nil {
		return err
	}

	ledger := balances.New()
	for symbol, amount := range cfg.StartingBalances {
		ledger.Credit(symbol, amount)
	}

	feesModel := fees.Schedule{MakerRate: cfg.MakerFeeRate, TakerRate: cfg.TakerFeeRate}
	liqModel := liquidity.Default{
		VolumeFraction: cfg.LiquidityVolumeFraction,
		SlippageFactor: cfg.LiquiditySlippageFactor,
	}

	var exchangeOpts []exchange.Option
	if cfg.MarginEnabled {
		pool := lending.NewPool(ledger, cfg.MarginInterestRate)
		exchangeOpts = append(exchangeOpts, exchange.WithLendingPool(pool))
	}
	ex := exchange.NewBacktestingExchange(disp, ledger, feesModel, liqModel, exchangeOpts...)

	base, quote, err := matching.Symbols(cfg.Pair)
	if err != nil {
		return err
	}
	if err := ex.RegisterPair(cfg.Pair, matching.Precision{Base: 8, Quote: 2}); err != nil {
		return err
	}

	logger := logging.WithComponent("eventrader")
	ex.OnTrade(func(t matching.Trade) {
		logger.Info().Str("pair", t.Pair).Str("side", string(t.Side)).
			Str("amount", t.Amount.String()).Str("price", t.Price.String()).
			Str("fee", t.FeeAmount.String()).Msg("trade")
	})
	ex.OnFill(func(f matching.Fill) {
		logger.Debug().Str("order_id", f.OrderID).Str("state", string(f.State)).
			Str("executed", f.ExecutedQty.String()).Str("remaining", f.RemainingQty.String()).
			Msg("fill")
	})

	strategyName, _ := cmd.Flags().GetString("strategy")
	switch strategyName {
	case "grid":
		g := strategy.NewGrid(ex, cfg.Pair, decimal.NewFromInt(1), decimal.NewFromFloat(0.01), 3, decimal.NewFromFloat(0.01))
		if err := ex.SubscribeToBarEvents(cfg.Pair, cfg.Period, g.OnBar); err != nil {
			return err
		}
	default:
		s := strategy.NewMovingAverageCrossover(ex, cfg.Pair, 5, 20, decimal.NewFromFloat(0.01))
		if err := ex.SubscribeToBarEvents(cfg.Pair, cfg.Period, s.OnBar); err != nil {
			return err
		}
	}

	ctx := context.Background()
	runErr := disp.Run(ctx)

	for _, loan := range ex.CloseAllLoans() {
		logger.Warn().Str("symbol", loan.Symbol).Str("outstanding", loan.Outstanding().String()).
			Msg("loan still open at shutdown")
	}

	if runErr != nil {
		return fmt.Errorf("eventrader: dispatcher run: %w", runErr)
	}

	final := ledger.Get(base)
	finalQuote := ledger.Get(quote)
	fmt.Printf("Final balances: %s=%s  %s=%s\n", base, final.Available, quote, finalQuote.Available)
	return nil
}
