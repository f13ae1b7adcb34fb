package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timetabler/internal/auth"
	"timetabler/internal/cache"
	"timetabler/internal/extract"
	"timetabler/internal/feed"
	"timetabler/internal/grpcserver"
	"timetabler/internal/logging"
	"timetabler/internal/metrics"
	"timetabler/internal/normalize"
	"timetabler/internal/taxonomy"
	"timetabler/internal/timetable"
	"timetabler/pkg/database"
	"timetabler/pkg/utils"
)

func main() {
	configPath := flag.String("config", os.Getenv("TIMETABLER_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "api-server:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := utils.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, "timetabler")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(database.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tax := taxonomy.NewStore(taxonomy.Options{
		Path:    cfg.Taxonomy.Path,
		Variant: cfg.Taxonomy.Variant,
		Strict:  cfg.Taxonomy.Strict,
	}, log)
	if _, err := tax.Load(); err != nil {
		return fmt.Errorf("load taxonomy: %w", err)
	}
	if cfg.Taxonomy.Watch && cfg.Taxonomy.Path != "" {
		if err := tax.Watch(ctx); err != nil {
			log.Warn("taxonomy watch disabled", zap.Error(err))
		}
	}

	ext, err := extract.New(ctx, cfg.Extraction.ExtractorConfig(), log)
	if err != nil {
		return fmt.Errorf("extractor: %w", err)
	}

	m := metrics.New()
	hub := feed.NewHub(log)
	defer hub.Close()
	repo := timetable.NewRepo(db)
	firstSeq, err := repo.NextSeq(ctx)
	if err != nil {
		return err
	}
	memo := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
		FirstSeq:   firstSeq,
	})

	svc := timetable.NewService(timetable.Deps{
		Taxonomy:   tax,
		Normalizer: normalize.New(cfg.Normalizer.UnmatchedColor, cfg.Normalizer.FallbackColor),
		Memo:       memo,
		Extractor:  ext,
		Store:      repo,
		Feed:       hub,
		Metrics:    m,
		Log:        log,
	}, timetable.Options{
		Timeout:      cfg.Extraction.Timeout,
		PrefixLength: cfg.Cache.FingerprintPrefixBytes,
	})

	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.Secret),
		Issuer:   cfg.Auth.Issuer,
		Duration: cfg.Auth.TTL,
	}

	router := newRouter(routerDeps{
		cfg:     cfg,
		db:      db,
		tax:     tax,
		svc:     svc,
		repo:    repo,
		hub:     hub,
		metrics: m,
		tokens:  tokens,
		log:     log,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var tcpSrv *feed.Server
	if cfg.Server.TCPAddr != "" {
		tcpSrv = feed.NewServer(cfg.Server.TCPAddr, hub, log)
	}

	var grpcSrv *grpcserver.Server
	var grpcLis net.Listener
	if cfg.Server.GRPCAddr != "" {
		grpcSrv = grpcserver.NewServer(map[string]grpcserver.Check{
			"database": db.PingContext,
			"taxonomy": taxonomyCheck(tax),
		}, grpcserver.DefaultInterval, log)
		grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	if tcpSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tcpSrv.Run(); err != nil {
				errCh <- fmt.Errorf("tcp feed: %w", err)
			}
		}()
	}

	if grpcSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcSrv.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("http api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
		log.Error("server error", zap.Error(runErr))
	}

	log.Info("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if tcpSrv != nil {
		if err := tcpSrv.Close(); err != nil {
			log.Warn("tcp shutdown", zap.Error(err))
		}
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	wg.Wait()
	log.Info("servers stopped")
	return runErr
}

type routerDeps struct {
	cfg     *utils.Config
	db      *sql.DB
	tax     *taxonomy.Store
	svc     *timetable.Service
	repo    *timetable.Repo
	hub     *feed.Hub
	metrics *metrics.Metrics
	tokens  auth.TokenService
	log     *zap.Logger
}

func newRouter(d routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(d.log), d.metrics.Middleware())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := d.hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{
			"status":      "ready",
			"db":          "ok",
			"taxonomy":    "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		}
		code := http.StatusOK
		if err := d.db.PingContext(ctx); err != nil {
			body["db"], code = err.Error(), http.StatusServiceUnavailable
		}
		if err := taxonomyCheck(d.tax)(ctx); err != nil {
			body["taxonomy"], code = err.Error(), http.StatusServiceUnavailable
		}
		if code != http.StatusOK {
			body["status"] = "not_ready"
		}
		c.JSON(code, body)
	})

	router.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	router.GET("/ws", feed.WSHandler(d.hub))

	authHandler := auth.NewHandler(d.tokens, d.cfg.Auth.AdminPasswordHash, d.log)
	authHandler.RegisterRoutes(router.Group("/auth"))

	h := timetable.NewHandler(d.svc, d.repo, d.tax, d.log)
	h.MaxUpload = d.cfg.Server.MaxUploadBytes
	if d.cfg.Auth.Enabled {
		h.Guard = auth.Middleware(d.tokens, true)
	}
	h.RegisterRoutes(router.Group(""))

	return router
}

func taxonomyCheck(tax *taxonomy.Store) grpcserver.Check {
	return func(context.Context) error {
		if !tax.Loaded() {
			return errors.New("taxonomy not loaded")
		}
		return nil
	}
}
