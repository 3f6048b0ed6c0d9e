package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/milhau/tradesim/internal/api"
	"github.com/milhau/tradesim/internal/config"
	"github.com/milhau/tradesim/internal/database"
	"github.com/milhau/tradesim/internal/export"
	"github.com/milhau/tradesim/internal/external"
	"github.com/milhau/tradesim/internal/portfolio"
	"github.com/milhau/tradesim/internal/price"
	"github.com/milhau/tradesim/internal/snapshot"
	"github.com/milhau/tradesim/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	app := &cli.App{
		Name:  "tradesim",
		Usage: "crypto trading simulator backend",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", EnvVars: []string{"DEBUG"}},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			return nil
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and background workers",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations and exit",
				Action: migrate,
			},
			{
				Name:      "quote",
				Usage:     "resolve one token to a quote",
				ArgsUsage: "<id|address>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "address", Usage: "treat the argument as a contract address"},
					&cli.StringFlag{Name: "chain", Usage: "preferred chain for address lookups"},
				},
				Action: quote,
			},
			{
				Name:      "search",
				Usage:     "search tokens by name or ticker",
				ArgsUsage: "<query>",
				Action:    search,
			},
			{
				Name:      "popular",
				Usage:     "list popular tokens of a chain",
				ArgsUsage: "<chain>",
				Action:    popular,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newResolver(cfg config.Config) *price.Resolver {
	coingecko := external.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoAPIKey, cfg.RequestTimeout, cfg.CoinGeckoDelay, cfg.CoinGeckoRetryMax)
	dexscreener := external.NewDexScreenerClient(cfg.DexScreenerURL, cfg.RequestTimeout)
	return price.NewResolver(coingecko, dexscreener, price.Settings{
		DexScreenerEnabled: cfg.DexScreenerEnabled,
		CoinGeckoAPIKey:    cfg.CoinGeckoAPIKey,
	})
}

func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func migrate(c *cli.Context) error {
	pool, err := connect(c.Context, config.Load())
	if err != nil {
		return err
	}
	pool.Close()
	slog.Info("migrations up to date")
	return nil
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	pool, err := connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("preparing database: %w", err)
	}
	defer pool.Close()

	resolver := newResolver(cfg)
	quoteRepo := external.NewPgQuoteRepository(pool)

	portfolioSvc := portfolio.NewService(portfolio.NewPgRepository(pool))
	snapshotSvc := snapshot.NewService(portfolioSvc, snapshot.NewPgRepository(pool))

	// Start workers
	refreshWorker := worker.NewRefreshWorker(resolver, portfolioSvc, quoteRepo, worker.RefreshOptions{
		Interval:       cfg.RefreshInterval,
		RequestTimeout: cfg.RequestTimeout,
		Concurrency:    cfg.RefreshConcurrency,
	})
	go refreshWorker.Run(ctx)

	var hook worker.AfterSnapshotHook
	if cfg.SheetsEnabled() {
		writer, err := export.NewSheetsWriter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentials)
		if err != nil {
			slog.Error("Google Sheets export disabled", "error", err)
		} else {
			hook = export.NewService(writer)
		}
	}
	reportWorker := worker.NewReportWorker(snapshotSvc, cfg.ReportWorkerInterval, hook)
	go reportWorker.Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, settings endpoint is unprotected")
	}

	// Start HTTP server
	handler := api.NewHandler(resolver, quoteRepo, portfolioSvc, snapshotSvc)
	srv := api.NewServer(cfg.HTTPPort, handler, cfg.AdminAPIKey)

	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

func quote(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: tradesim quote <id|address> [--address] [--chain name]", 2)
	}
	q, err := newResolver(config.Load()).Resolve(c.Context, c.Args().First(), c.Bool("address"), c.String("chain"))
	if err != nil {
		return err
	}
	return printJSON(q)
}

func search(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: tradesim search <query>", 2)
	}
	quotes, err := newResolver(config.Load()).Search(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(quotes)
}

func popular(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("usage: tradesim popular <chain> (one of %v)", price.PopularChains()), 2)
	}
	quotes, err := newResolver(config.Load()).Popular(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(quotes)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
