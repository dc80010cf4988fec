// Command chat opens an interactive conversation with the configured advisor.
// The conversation can be seeded with a stored analysis or with the latest
// decision published on the Redis bus.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.opentelemetry.io/otel"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/llmadvisor"
	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/adapters/redisbus"
	"cryptoSignalBot/internal/adapters/sqlite"
	"cryptoSignalBot/internal/ports"
)

func main() {
	analysisID := flag.Int64("analysis", 0, "seed the conversation with the stored analysis with this ID")
	latest := flag.Bool("latest", false, "seed the conversation with the latest decision from Redis")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewZapLogger(logger.LevelWarn, logger.Format(cfg.LogFormat))
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	advisor, err := newAdvisor(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	var seed string
	switch {
	case *analysisID > 0:
		seed, err = analysisSeed(ctx, cfg, appLogger, *analysisID)
	case *latest:
		seed, err = latestSeed(ctx, cfg, appLogger)
	}
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if err := chatLoop(ctx, advisor, seed, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("FATAL: %v", err)
	}
}

func newAdvisor(cfg *config.Config, appLogger ports.Logger) (*llmadvisor.Advisor, error) {
	var client llmadvisor.LLMClient
	var provider, model string
	switch cfg.AdvisorProvider {
	case config.AdvisorOpenAI:
		client = llmadvisor.NewOpenAIClient(cfg.OpenAIAPIKey)
		provider, model = "chatgpt", cfg.OpenAIModel
	case config.AdvisorDeepSeek:
		client = llmadvisor.NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL)
		provider, model = "deepseek", cfg.DeepSeekModel
	default:
		return nil, fmt.Errorf("ADVISOR_PROVIDER must be %q or %q to chat: %w", config.AdvisorOpenAI, config.AdvisorDeepSeek, ports.ErrConfigurationError)
	}
	return llmadvisor.New(otel.Tracer("cryptoSignalBot/chat"), client, llmadvisor.Config{
		Provider:     provider,
		Model:        model,
		HistoryLimit: cfg.AdvisorHistoryLimit,
		Logger:       appLogger,
	})
}

func analysisSeed(ctx context.Context, cfg *config.Config, appLogger ports.Logger, id int64) (string, error) {
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return "", err
	}
	defer repo.Close()

	rec, err := repo.FindAnalysisByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", fmt.Errorf("analysis %d: %w", id, ports.ErrNotFound)
	}
	var sb strings.Builder
	sb.WriteString(llmadvisor.BuildAnalysisPrompt(rec.Snapshot))
	fmt.Fprintf(&sb, "\nThe bot recommended %s (confidence %.0f%%), risk decision: %s.",
		rec.Recommendation.Action, rec.Recommendation.Confidence, rec.Decision.Reason)
	if rec.Plan != nil {
		fmt.Fprintf(&sb, " Plan: quantity %.6f, stop %.2f, target %.2f.",
			rec.Plan.Quantity, rec.Plan.StopLossPrice, rec.Plan.TakeProfitPrice)
	}
	return sb.String(), nil
}

func latestSeed(ctx context.Context, cfg *config.Config, appLogger ports.Logger) (string, error) {
	bus, err := redisbus.New(ctx, redisbus.Config{URL: cfg.RedisURL, Channel: cfg.RedisChannel, Logger: appLogger})
	if err != nil {
		return "", err
	}
	defer bus.Close()

	msg, err := bus.Latest(ctx, cfg.Symbol)
	if err != nil {
		return "", fmt.Errorf("latest decision for %s: %w", cfg.Symbol, err)
	}
	return fmt.Sprintf("Latest %s decision at %s: price %.2f, RSI %.2f, ATR %.2f, trend %s, MACD cross %s. "+
		"Action %s with confidence %.0f%%, approved=%t (%s).",
		msg.Symbol, msg.Timestamp.Format("2006-01-02 15:04"), msg.Price, msg.RSI, msg.ATR, msg.Trend, msg.MACDCross,
		msg.Action, msg.Confidence, msg.Approved, msg.Reason), nil
}

// chatter is the part of the advisor the loop needs.
type chatter interface {
	Chat(ctx context.Context, message string) (string, error)
	History() llmadvisor.History
}

// chatLoop reads one message per line until EOF or "/exit".
// "/history" prints how many messages the advisor currently keeps.
func chatLoop(ctx context.Context, c chatter, seed string, in io.Reader, out io.Writer) error {
	if seed != "" {
		reply, err := c.Chat(ctx, seed)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "advisor> %s\n", reply)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/history":
			fmt.Fprintf(out, "%d messages in history\n", c.History().Len())
			continue
		}

		reply, err := c.Chat(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "advisor> %s\n", reply)
	}
}
