package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"solana-copytrader/internal/bus"
)

// Operator tool: moves dead-lettered messages and stashed publish
// failures back onto the live topics.
func main() {
	_ = godotenv.Load()

	redisAddr := flag.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address for the event bus")
	topics := flag.String("topics", strings.Join([]string{bus.TopicTradeEvent, bus.TopicSwapEvent, bus.TopicSwapResult}, ","), "Comma-separated topics to replay")
	count := flag.Int64("count", 100, "Max dead-letter entries to replay per topic")
	listOnly := flag.Bool("list", false, "List dead-letter entries without replaying")
	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *redisAddr, splitList(*topics), *count, *listOnly); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, redisAddr string, topics []string, count int64, listOnly bool) error {
	b, err := bus.Connect(ctx, redisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer b.Close()

	for _, topic := range topics {
		if listOnly {
			entries, err := b.DeadLetters(ctx, topic, count)
			if err != nil {
				return err
			}
			logger.Printf("%s: %d dead-letter entries", topic, len(entries))
			for _, e := range entries {
				logger.Printf("  %s original=%v error=%v", e.ID, e.Values["original_id"], e.Values["error"])
			}
			continue
		}

		replayed, err := b.ReplayDead(ctx, topic, count)
		if err != nil {
			return fmt.Errorf("replay %s: %w", topic, err)
		}

		// Re-publish payloads that never made it onto the stream.
		recovered := 0
		for {
			data, err := b.PopFailed(ctx, topic)
			if err != nil {
				return fmt.Errorf("pop failed %s: %w", topic, err)
			}
			if data == nil {
				break
			}
			if err := b.Publish(ctx, topic, data); err != nil {
				// Put it back so nothing is lost.
				if pushErr := b.PushFailed(ctx, topic, data); pushErr != nil {
					logger.Printf("%s: payload dropped after publish and re-stash failed: %v", topic, pushErr)
				}
				return fmt.Errorf("republish %s: %w", topic, err)
			}
			recovered++
		}

		logger.Printf("%s: replayed %d dead-letter entries, recovered %d stashed payloads", topic, replayed, recovered)
	}
	return nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
