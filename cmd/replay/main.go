// Command replay runs the decision pipeline over candles stored in a CSV file
// and prints the decision of every cycle. Orders go to the paper executor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/app"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/execution"
	"cryptoSignalBot/internal/utils"
)

// windowSource serves a sliding window over a fixed candle history.
type windowSource struct {
	candles []domain.Candle
	end     int
}

func (w *windowSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	start := w.end - limit
	if start < 0 {
		start = 0
	}
	return w.candles[start:w.end], nil
}

func main() {
	file := flag.String("file", "", "CSV file produced by fetch_klines")
	step := flag.Int("step", 1, "candles to advance between cycles")
	flag.Parse()
	if *file == "" {
		log.Fatal("FATAL: -file is required")
	}
	if *step <= 0 {
		log.Fatal("FATAL: -step must be positive")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewZapLogger(logger.LevelWarn, logger.Format(cfg.LogFormat))
	defer appLogger.Sync()

	candles, err := utils.ReadCandlesFromCSV(*file)
	if err != nil {
		log.Fatalf("FATAL: Failed to read candles: %v", err)
	}

	pipeline, err := app.NewPipeline(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize decision pipeline: %v", err)
	}
	paper, err := execution.NewPaperExecutor(execution.PaperConfig{
		SlippageBps: cfg.PaperSlippageBps,
		Balance:     cfg.InitialBalance,
		QuoteAsset:  cfg.QuoteAsset,
		Logger:      appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize paper executor: %v", err)
	}
	source := &windowSource{candles: candles}
	service, err := pipeline.NewService(cfg, appLogger, source, paper, paper)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal service: %v", err)
	}

	required := pipeline.Engine.RequiredDataPoints()
	if len(candles) < required {
		log.Fatalf("FATAL: %d candles in %s, need at least %d", len(candles), *file, required)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPRICE\tRSI\tTREND\tCROSS\tACTION\tAPPROVED\tQTY\tREASON")
	counts := map[domain.Action]int{}
	ctx := context.Background()
	for end := required; end <= len(candles); end += *step {
		source.end = end
		result, err := service.RunCycle(ctx)
		if err != nil && result == nil {
			fmt.Fprintf(os.Stderr, "cycle at %d: %v\n", end, err)
			continue
		}
		counts[result.Recommendation.Action]++
		qty := 0.0
		if result.Plan != nil {
			qty = result.Plan.Quantity
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.1f\t%s\t%s\t%s\t%t\t%.6f\t%s\n",
			result.Snapshot.Timestamp.Format(time.RFC3339),
			result.Snapshot.CurrentPrice,
			result.Snapshot.RSI,
			result.Recommendation.Trend,
			result.Snapshot.MACDCross,
			result.Recommendation.Action,
			result.Decision.Approved,
			qty,
			result.Decision.Reason,
		)
	}
	tw.Flush()

	fmt.Printf("\nCycles: BUY=%d SELL=%d HOLD=%d, paper fills=%d\n",
		counts[domain.ActionBuy], counts[domain.ActionSell], counts[domain.ActionHold], len(paper.Fills()))
}
