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

	"github.com/joho/godotenv"

	"geoquiz/internal/api"
	"geoquiz/pkg/cache"
	"geoquiz/pkg/config"
	"geoquiz/pkg/db"
	"geoquiz/pkg/db/maintenance"
	"geoquiz/pkg/featurestore"
	"geoquiz/pkg/logging"
	"geoquiz/pkg/nominatim"
	"geoquiz/pkg/places"
	"geoquiz/pkg/quiz"
	"geoquiz/pkg/request"
	"geoquiz/pkg/search"
	"geoquiz/pkg/shapefile"
	"geoquiz/pkg/store"
	"geoquiz/pkg/tracker"
	"geoquiz/pkg/version"
)

const defaultConfigPath = "configs/geoquiz.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// A missing .env is fine; the key may come from the environment or the config.
	_ = godotenv.Load()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("GeoQuiz Started", "version", version.Version)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	if err := maintenance.Run(ctx, st, dbConn, maintenance.Options{
		ImportDir: cfg.DB.ImportDir,
		CacheTTL:  cfg.DB.CacheTTL.D(),
	}); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	tr := tracker.New()
	memCache := cache.NewTiered(st, cfg.DB.CacheTTL.D(), cfg.Request.MemoryCache)
	reqClient := newRequestClient(cfg, memCache, tr)

	areas, err := newAreaProvider(cfg, reqClient)
	if err != nil {
		return err
	}

	engineOpts := []search.Option{
		search.WithTracker(tr),
		search.WithSampleAttempts(cfg.Search.SampleAttempts),
		search.WithPointRadius(cfg.Search.PointRadius),
		search.WithGeocodeConcurrency(cfg.Search.GeocodeConcurrency),
		search.WithLogger(slog.Default().With("component", "search")),
	}
	areaEngine := search.NewAreaEngine(areas, engineOpts...)

	var pointEngine *search.PointEngine
	if cfg.Places.Key != "" {
		pc := places.NewClient(reqClient, cfg.Places.Key, nil)
		if cfg.Places.BaseURL != "" {
			pc.BaseURL = cfg.Places.BaseURL
		}
		pc.Language = cfg.Places.Language
		pointEngine = search.NewPointEngine(pc, engineOpts...)
	} else {
		slog.Warn("Point search disabled: no places key configured", "env", config.PlacesKeyEnv)
	}

	session := quiz.NewSession(quiz.WithLogger(slog.Default().With("component", "quiz")))
	ws := api.NewWorkspace(st, session, nil, featurestore.WithCascadeDelete(cfg.Store.CascadeDelete))
	if err := ws.Resume(ctx); err != nil {
		slog.Warn("Failed to resume previous quiz", "error", err)
	}

	return runServer(ctx, cfg, ws, st, areaEngine, pointEngine, tr, memCache)
}

func newRequestClient(cfg *config.Config, c cache.Cacher, tr *tracker.Tracker) *request.Client {
	opts := []request.Option{
		request.WithLogger(logging.RequestLogger),
		request.WithUserAgent(cfg.Request.UserAgent),
		request.WithTimeout(cfg.Request.Timeout.D()),
		request.WithRetries(cfg.Request.Retries, cfg.Request.Backoff.BaseDelay.D()),
		request.WithBackoff(cfg.Request.Backoff.BaseDelay.D(), cfg.Request.Backoff.MaxDelay.D()),
	}
	for provider, perSecond := range cfg.Request.RateLimits {
		opts = append(opts, request.WithRateLimit(provider, perSecond))
	}
	return request.New(c, tr, opts...)
}

func newAreaProvider(cfg *config.Config, r *request.Client) (search.AreaProvider, error) {
	switch cfg.Search.AreaProvider {
	case config.ProviderShapefile:
		p, err := shapefile.Open(cfg.Shapefile.Path, shapefile.Options{
			NameField:     cfg.Shapefile.NameField,
			LongNameField: cfg.Shapefile.LongNameField,
			Limit:         cfg.Shapefile.Limit,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open shapefile: %w", err)
		}
		slog.Info("Area search uses shapefile", "path", cfg.Shapefile.Path, "areas", p.Len())
		return p, nil
	default:
		nc := nominatim.NewClient(r, nil)
		if cfg.Nominatim.Endpoint != "" {
			nc.Endpoint = cfg.Nominatim.Endpoint
		}
		nc.Language = cfg.Nominatim.Language
		nc.Email = cfg.Nominatim.Email
		if cfg.Nominatim.Limit > 0 {
			nc.Limit = cfg.Nominatim.Limit
		}
		slog.Info("Area search uses nominatim", "endpoint", nc.Endpoint)
		return nc, nil
	}
}

func runServer(ctx context.Context, cfg *config.Config, ws *api.Workspace, st store.Store, areas *search.AreaEngine, points *search.PointEngine, tr *tracker.Tracker, memCache *cache.Tiered) error {
	quit := make(chan struct{}, 1)
	shutdownFunc := func() {
		select {
		case quit <- struct{}{}:
		default:
		}
	}

	searchH := api.NewSearchHandler(ws, areas, points, cfg.Search.Debounce.D())
	quizH := api.NewQuizHandler(ws, st)
	srv := api.NewServer(cfg.Server.Address, api.Handlers{
		Quizzes:  quizH,
		Features: api.NewFeatureHandler(ws, quizH, searchH),
		Search:   searchH,
		Session:  api.NewSessionHandler(ws, cfg.Quiz.AnswerTolerance.Meters()),
		Stats:    api.NewStatsHandler(tr, memCache),
	}, shutdownFunc)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit <-chan struct{}) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
