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
	"time"

	"github.com/joho/godotenv"

	"solana-copytrader/internal/bus"
	"solana-copytrader/internal/copytrade"
	"solana-copytrader/internal/engine"
	"solana-copytrader/internal/ingestion"
	"solana-copytrader/internal/notify"
	"solana-copytrader/internal/observability"
	"solana-copytrader/internal/pools"
	"solana-copytrader/internal/settlement"
	"solana-copytrader/internal/solana"
	"solana-copytrader/internal/storage"
	chstore "solana-copytrader/internal/storage/clickhouse"
	"solana-copytrader/internal/storage/memory"
	"solana-copytrader/internal/storage/migrations"
	pgstore "solana-copytrader/internal/storage/postgres"
	"solana-copytrader/internal/txbuilder"
)

func main() {
	// .env is optional; explicit flags win over it.
	_ = godotenv.Load()

	rpcEndpoints := flag.String("rpc-endpoints", envOr("RPC_ENDPOINTS", ""), "Comma-separated Solana RPC HTTP endpoints (raced)")
	wsEndpoint := flag.String("ws-endpoint", envOr("WS_ENDPOINT", ""), "Solana WebSocket endpoint")
	redisAddr := flag.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address for the event bus")
	postgresDSN := flag.String("postgres-dsn", envOr("POSTGRES_DSN", ""), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", envOr("CLICKHOUSE_DSN", ""), "ClickHouse DSN for trade event analytics (empty to disable)")
	jupiterURL := flag.String("jupiter-url", envOr("JUPITER_URL", ""), "Jupiter quote API base URL (empty for public)")
	poolIndexURL := flag.String("pool-index-url", envOr("POOL_INDEX_URL", ""), "Pool index base URL (empty to disable index discovery)")
	walletKeys := flag.String("wallet-keys", envOr("WALLET_KEYS", ""), "Comma-separated base58 private keys of follower wallets")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9090"), "Prometheus metrics HTTP address (empty to disable)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile)

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, logger, config{
		rpcEndpoints:  splitList(*rpcEndpoints),
		wsEndpoint:    *wsEndpoint,
		redisAddr:     *redisAddr,
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		jupiterURL:    *jupiterURL,
		poolIndexURL:  *poolIndexURL,
		walletKeys:    splitList(*walletKeys),
		useMemory:     *useMemory,
	}); err != nil {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

type config struct {
	rpcEndpoints  []string
	wsEndpoint    string
	redisAddr     string
	postgresDSN   string
	clickhouseDSN string
	jupiterURL    string
	poolIndexURL  string
	walletKeys    []string
	useMemory     bool
}

func run(ctx context.Context, logger *log.Logger, cfg config) error {
	if len(cfg.rpcEndpoints) == 0 {
		return fmt.Errorf("--rpc-endpoints is required")
	}
	if cfg.wsEndpoint == "" {
		return fmt.Errorf("--ws-endpoint is required")
	}
	if !cfg.useMemory && cfg.postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	fetchers := make([]solana.RPCClient, 0, len(cfg.rpcEndpoints))
	for _, endpoint := range cfg.rpcEndpoints {
		fetchers = append(fetchers, solana.NewHTTPClient(endpoint))
	}
	rpc := fetchers[0]

	ws, err := solana.NewWSClient(ctx, cfg.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	b, err := bus.Connect(ctx, cfg.redisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer b.Close()

	var (
		subs    storage.CopyTradeStore  = memory.NewCopyTradeStore()
		records storage.SwapRecordStore = memory.NewSwapRecordStore()
		poolReg storage.PoolStore       = memory.NewPoolStore()
	)
	if !cfg.useMemory {
		pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		subs = pgstore.NewCopyTradeStore(pool)
		records = pgstore.NewSwapRecordStore(pool)
		poolReg = pgstore.NewPoolStore(pool)
	}

	var events storage.TradeEventStore
	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		events = chstore.NewTradeEventStore(conn)
	}

	wallets, err := loadWallets(cfg.walletKeys)
	if err != nil {
		return err
	}
	logger.Printf("Loaded %d follower wallets", len(wallets))

	monitor := ingestion.NewMonitor(ingestion.MonitorOptions{
		WS:            ws,
		Fetchers:      fetchers,
		Subscriptions: subs,
		Events:        events,
		Publisher:     b,
	})

	copier := copytrade.New(copytrade.Options{
		Subscriptions: subs,
		RPC:           rpc,
		Publisher:     b,
	})

	var discovery pools.Discovery
	if cfg.poolIndexURL != "" {
		discovery = pools.NewHTTPDiscovery(cfg.poolIndexURL)
	}
	resolver := pools.NewResolver(poolReg, rpc, discovery)

	builder := txbuilder.NewAggregateBuilder(
		txbuilder.NewPumpFunBuilder(rpc),
		txbuilder.NewPumpSwapBuilder(rpc, resolver),
		txbuilder.NewMeteoraBuilder(rpc, resolver),
		txbuilder.NewJupiterBuilder(cfg.jupiterURL),
	)

	processor := settlement.New(settlement.Options{
		RPC:       rpc,
		Records:   records,
		Publisher: b,
	})

	eng := engine.New(engine.Options{
		Bus:           b,
		Monitor:       monitor,
		CopyTrade:     copier,
		Builder:       builder,
		Settlement:    processor,
		Notifier:      notify.NewRouter(subs, notify.LogSink{}),
		Wallets:       wallets,
		Events:        events,
		Subscriptions: copytrade.NewSubscriptions(subs, monitor),
	})

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	logger.Println("Pipeline running")

	waitForShutdown(ctx, logger)
	return eng.Stop()
}

// waitForShutdown blocks until a signal or context end. A second signal
// forces immediate exit.
func waitForShutdown(ctx context.Context, logger *log.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case <-ctx.Done():
		return
	}

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Printf("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Metrics server error: %v", err)
	}
}

func loadWallets(keys []string) (engine.StaticWallets, error) {
	wallets := make(engine.StaticWallets, len(keys))
	for i, key := range keys {
		w, err := txbuilder.NewWallet(key)
		if err != nil {
			return nil, fmt.Errorf("wallet key %d: %w", i+1, err)
		}
		wallets[w.PublicKey()] = w
	}
	return wallets, nil
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
