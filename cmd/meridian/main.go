package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-gl/meridian-gl/cmd/meridian/cli"
	"github.com/meridian-gl/meridian-gl/internal/app"
	"github.com/meridian-gl/meridian-gl/internal/ledger/projection"
	"github.com/meridian-gl/meridian-gl/internal/ledger/reconcile"
	"github.com/meridian-gl/meridian-gl/internal/observability"
	"github.com/meridian-gl/meridian-gl/internal/platform/cache"
	"github.com/meridian-gl/meridian-gl/internal/platform/db"
	"github.com/meridian-gl/meridian-gl/internal/shared"
	"github.com/meridian-gl/meridian-gl/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if len(os.Args) > 1 {
		os.Exit(runCommand(os.Args[1], os.Args[2:]))
	}
	runServer()
}

func runCommand(name string, args []string) int {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch name {
	case "jobs":
		return runJobs(ctx, cfg, args)
	case "verify":
		return runVerify(ctx, cfg, logger, args)
	default:
		fmt.Fprintln(os.Stderr, "usage: meridian [jobs|verify] ... (no arguments starts the server)")
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: meridian jobs <trigger|rebuild|stats|scheduled> [flags]")
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "usage: meridian jobs trigger <%s|%s|%s>\n",
				jobs.TaskLedgerReconcileScan, jobs.TaskReportsWarmup, jobs.TaskPeriodsCloseReminder)
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
	case "rebuild":
		fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
		tenant := fs.String("tenant", "", "tenant id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		info, err := jobsCLI.TriggerRebuild(ctx, *tenant)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs rebuild: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", jobs.TaskLedgerRebuild, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		infos, err := jobsCLI.ListScheduled(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, info := range infos {
			fmt.Printf("%s %s\n", info.ID, info.Type)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: meridian jobs <trigger|rebuild|stats|scheduled> [flags]")
		return 2
	}
	return 0
}

func runVerify(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (required)")
	account := fs.Int64("account", 0, "restrict the check to one account id")
	fix := fs.Bool("fix", false, "rebuild the projection when drift is found")
	jsonOut := fs.Bool("json", false, "emit machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	projectionSvc := projection.NewService(projection.NewRepository(pool), auditLogger)
	reconcileSvc := reconcile.NewService(reconcile.NewRepository(pool), projectionSvc, auditLogger)

	verifyCLI, err := cli.NewVerifyOpsCLI(reconcileSvc)
	if err != nil {
		logger.Error("init verify", slog.Any("error", err))
		return 1
	}
	return verifyCLI.VerifyCommand(ctx, cli.VerifyOptions{
		TenantID:   *tenant,
		AccountID:  *account,
		Fix:        *fix,
		JSONOutput: *jsonOut,
	})
}

func runServer() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
		Jobs:    jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
