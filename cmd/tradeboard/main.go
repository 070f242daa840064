package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/tradeboard/tradeboard/cmd/tradeboard/cli"
	"github.com/tradeboard/tradeboard/internal/app"
	"github.com/tradeboard/tradeboard/internal/auth"
	"github.com/tradeboard/tradeboard/internal/observability"
	"github.com/tradeboard/tradeboard/internal/platform/cache"
	"github.com/tradeboard/tradeboard/internal/platform/db"
	"github.com/tradeboard/tradeboard/internal/rbac"
	"github.com/tradeboard/tradeboard/internal/registry"
	registryhttp "github.com/tradeboard/tradeboard/internal/registry/http"
	"github.com/tradeboard/tradeboard/internal/registry/ingest"
	"github.com/tradeboard/tradeboard/internal/shared"
	"github.com/tradeboard/tradeboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, os.Args[1], os.Args[2:]))
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if cfg.AuthDisabled {
		logger.Warn("AUTH_DISABLED is set, every request runs as the demo admin")
	}

	redisClient := cache.NewClient(cfg.Redis())
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	store := ingest.NewStore(ingest.StoreConfig{
		Path:     cfg.DataFilePath,
		Required: cfg.RequiredFields,
		Timeout:  cfg.IngestTimeout,
	}, logger)
	viewCache := registryhttp.NewCache(redisClient, cfg.CacheTTL)
	notifier := ingest.NewNotifier(redisClient, logger)

	store.OnReload(func(ctx context.Context, snap *ingest.Snapshot) {
		metrics.SnapshotLoaded(string(snap.Source.Kind), snap.Table.Len())
		if err := viewCache.Bump(ctx); err != nil {
			logger.Warn("bump registry cache", slog.Any("error", err))
		}
	})
	store.OnFailure(func(_ context.Context, src ingest.Source, _ error) {
		metrics.SnapshotFailed(string(src.Kind))
	})

	var dbpool *pgxpool.Pool
	group, startCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := cache.Ping(startCtx, redisClient); err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
		}
		return nil
	})
	if cfg.UsersSource == app.UsersSourcePostgres {
		group.Go(func() error {
			pool, err := db.New(startCtx, cfg.Postgres())
			if err != nil {
				return err
			}
			if err := auth.NewRepository(pool).EnsureSchema(startCtx); err != nil {
				pool.Close()
				return err
			}
			dbpool = pool
			return nil
		})
	}
	group.Go(func() error {
		if cfg.DataFilePath == "" {
			logger.Warn("DATA_FILE_PATH is empty, waiting for an upload")
			return nil
		}
		// A bad data file leaves the dashboard empty until a reload or upload.
		_, _ = store.LoadFile(startCtx)
		return nil
	})
	if err := group.Wait(); err != nil {
		logger.Error("startup", slog.Any("error", err))
		os.Exit(1)
	}
	if dbpool != nil {
		defer dbpool.Close()
	}

	if err := viewCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("listen for cache invalidation", slog.Any("error", err))
	}
	if err := notifier.Listen(ctx, store); err != nil {
		logger.Warn("listen for registry reloads", slog.Any("error", err))
	}

	sessionManager := shared.NewSessionManager(redisClient, "tradeboard_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	var users auth.Repository = auth.NewCSVRepository(cfg.UsersFile)
	if dbpool != nil {
		users = auth.NewRepository(dbpool)
	}
	resolver := auth.NewResolver(cfg.AuthDisabled)
	authHandler := auth.NewHandler(logger, auth.NewService(users), resolver, sessionManager, csrfManager)
	rbacMiddleware := rbac.Middleware{Identities: resolver, Logger: logger}

	evaluator := registry.Evaluator{OnUnknownRole: func(id registry.Identity) {
		logger.Warn("unknown role has no registry access",
			slog.String("user", id.Username),
			slog.String("role", string(id.Role)))
		metrics.UnknownRole(string(id.Role))
	}}
	registryHandler := registryhttp.NewHandler(logger, store, resolver, viewCache, evaluator, cfg.UploadMaxBytes)

	redisOpts := cfg.Redis().AsynqOpt()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		RegistryHandler: registryHandler,
		RBACMiddleware:  rbacMiddleware,
		JobHandler:      jobHandler,
		Metrics:         metrics,
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

func runCommand(ctx context.Context, name string, args []string) int {
	switch name {
	case "create-user":
		return createUser(ctx, args)
	case "reload":
		return triggerReload(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want create-user or reload)\n", name)
		return 2
	}
}

func createUser(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	opts := cli.CreateUserOptions{}
	fs.StringVar(&opts.Username, "username", "", "login name")
	fs.StringVar(&opts.DisplayName, "display", "", "display name")
	fs.StringVar(&opts.Role, "role", "member", "admin, staff or member")
	fs.StringVar(&opts.MemberID, "member-id", "", "seller registry number for members")
	fs.StringVar(&opts.Password, "password", "", "password; read from stdin when empty")
	fs.BoolVar(&opts.Header, "header", false, "print the users.csv header first")
	toPostgres := fs.Bool("postgres", false, "upsert into the users table at PG_DSN")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *toPostgres {
		cfg, err := app.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return 1
		}
		pool, err := db.New(ctx, cfg.Postgres())
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
			return 1
		}
		defer pool.Close()
		repo := auth.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "ensure users table: %v\n", err)
			return 1
		}
		opts.Store = repo
	}
	return cli.NewUsersCLI().CreateUserCommand(ctx, opts)
}

func triggerReload(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	force := fs.Bool("force", false, "announce a reload even if the file is unchanged")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.Redis().AsynqOpt())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init jobs cli: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	info, err := jobsCLI.TriggerReload(ctx, *force)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		fmt.Fprintln(os.Stdout, "a reload check is already queued")
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue reload: %v\n", err)
		return 1
	}
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect queue: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "enqueued %s on %s (pending %d, active %d)\n", info.ID, info.Queue, stats.Pending, stats.Active)
	return 0
}
