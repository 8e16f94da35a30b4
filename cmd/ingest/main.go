package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/ingestion"
	"solana-copytrader/internal/observability"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/storage"
	chstore "solana-copytrader/internal/storage/clickhouse"
	"solana-copytrader/internal/storage/memory"
	"solana-copytrader/internal/storage/migrations"
	pgstore "solana-copytrader/internal/storage/postgres"
)

// Ingestion-only process: watches tracked wallets and publishes
// classified trade events. Execution runs elsewhere off the bus.
func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "live", "Ingestion mode: live or backfill")
	rpcEndpoints := flag.String("rpc-endpoints", envOr("RPC_ENDPOINTS", ""), "Comma-separated Solana RPC HTTP endpoints (raced)")
	wsEndpoint := flag.String("ws-endpoint", envOr("WS_ENDPOINT", ""), "Solana WebSocket endpoint (live mode)")
	redisAddr := flag.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address for the event bus")
	postgresDSN := flag.String("postgres-dsn", envOr("POSTGRES_DSN", ""), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", envOr("CLICKHOUSE_DSN", ""), "ClickHouse DSN for dedupe across restarts (empty to disable)")
	wallet := flag.String("wallet", "", "Wallet to backfill (backfill mode)")
	limit := flag.Int("limit", 100, "Max signatures to backfill")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9091"), "Prometheus metrics HTTP address (empty to disable)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory subscription storage instead of PostgreSQL")
	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, logger, *mode, splitList(*rpcEndpoints), *wsEndpoint, *redisAddr,
		*postgresDSN, *clickhouseDSN, *wallet, *limit, *useMemory)
	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, mode string, rpcEndpoints []string, wsEndpoint, redisAddr, postgresDSN, clickhouseDSN, wallet string, limit int, useMemory bool) error {
	if len(rpcEndpoints) == 0 {
		return fmt.Errorf("--rpc-endpoints is required")
	}
	if !useMemory && postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	fetchers := make([]solana.RPCClient, 0, len(rpcEndpoints))
	for _, endpoint := range rpcEndpoints {
		fetchers = append(fetchers, solana.NewHTTPClient(endpoint))
	}

	b, err := bus.Connect(ctx, redisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer b.Close()

	var (
		subs     storage.CopyTradeStore        = memory.NewCopyTradeStore()
		progress storage.BackfillProgressStore = memory.NewBackfillProgressStore()
	)
	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		subs = pgstore.NewCopyTradeStore(pool)
		progress = pgstore.NewBackfillProgressStore(pool)
	}

	var events storage.TradeEventStore
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		events = chstore.NewTradeEventStore(conn)
	}

	opts := ingestion.MonitorOptions{
		Fetchers:      fetchers,
		Subscriptions: subs,
		Events:        events,
		Progress:      progress,
		Publisher:     b,
	}

	switch mode {
	case "live":
		if wsEndpoint == "" {
			return fmt.Errorf("--ws-endpoint is required for live mode")
		}
		ws, err := solana.NewWSClient(ctx, wsEndpoint, nil)
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		defer ws.Close()
		opts.WS = ws

		monitor := ingestion.NewMonitor(opts)
		if err := monitor.ReloadTargets(ctx); err != nil {
			return err
		}
		logger.Println("Starting live ingestion...")
		return monitor.Run(ctx)

	case "backfill":
		if wallet == "" {
			return fmt.Errorf("--wallet is required for backfill mode")
		}
		monitor := ingestion.NewMonitor(opts)
		monitor.Watch(wallet)
		n, err := monitor.Backfill(ctx, wallet, limit)
		if err != nil {
			return err
		}
		logger.Printf("Backfill complete: %d events published for %s", n, wallet)
		return nil

	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
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
