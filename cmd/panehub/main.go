package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"panehub/server/internal/app"
	"panehub/server/internal/auth"
	"panehub/server/internal/broker"
	"panehub/server/internal/config"
	"panehub/server/internal/env"
	"panehub/server/internal/export"
	"panehub/server/internal/history"
	"panehub/server/internal/logx"
	"panehub/server/internal/pane"
	"panehub/server/internal/search"
	"panehub/server/internal/session"
	"panehub/server/internal/snapshot"
	"panehub/server/internal/transport"

	"github.com/golang/glog"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	level, err := logx.ParseLevel(cfg.LoggingLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logx.Setup(level, filepath.Join(cfg.EnvPath, "logs")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer glog.Flush()

	ctx := context.Background()

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		glog.Exitf("snapshot backend failed: %v", err)
	}
	defer closeBackend()

	var historyRepo *history.Repo
	if cfg.EnvHistory {
		historyRepo, err = history.Open(filepath.Join(cfg.EnvPath, ".history"))
		if err != nil {
			glog.Exitf("env history failed: %v", err)
		}
		backend = history.Wrap(backend, historyRepo, func(eid string, err error) {
			glog.Errorf("history: record %s: %v", eid, err)
		})
	}

	store := env.NewStore(backend, cfg.EagerDataLoading)
	if err := store.LoadAll(ctx); err != nil {
		glog.Exitf("loading envs failed: %v", err)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliKey)
		defer meiliClient.Close()
	}
	// The scan walks the broker, which needs the service as its indexer;
	// the walker is attached once the broker exists.
	walker := &lateWalker{}
	searchService := search.NewService(meiliClient, search.NewScan(walker))

	registry := transport.NewRegistry()
	b := broker.New(store, registry, broker.Options{
		Readonly: cfg.Readonly,
		Indexer:  searchService,
	})
	walker.broker = b
	searchService.ReindexAll(ctx, b)

	gate, closeSessions, err := openGate(cfg)
	if err != nil {
		glog.Exitf("login setup failed: %v", err)
	}
	defer closeSessions()

	runCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	reaper := transport.NewReaper(registry)
	reaper.OnReap = func(c transport.Conn) {
		b.CloseConn(c.Kind(), c.ID())
	}
	go reaper.Run(runCtx)

	httpServer := app.NewHTTPServer(app.Services{
		Broker:  b,
		Gate:    gate,
		Search:  searchService,
		Export:  export.NewService(b),
		History: historyRepo,
	}, app.Options{
		BaseURL:                  cfg.BaseURL,
		Debug:                    cfg.Debug,
		UseFrontendClientPolling: cfg.UseFrontendClientPolling,
	})
	// No read or write timeout: sockets and long polls stay open.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		glog.Infof("panehub listening on %s (http://%s:%d%s)", cfg.Addr(), cfg.Hostname, cfg.Port, cfg.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Exitf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("shutdown error: %v", err)
	}
	for _, c := range append(registry.Subs(), registry.Sources()...) {
		b.CloseConn(c.Kind(), c.ID())
	}
}

func openBackend(ctx context.Context, cfg config.Config) (snapshot.Backend, func(), error) {
	switch cfg.SnapshotBackend {
	case config.BackendPostgres:
		glog.Infof("storing envs in postgres")
		pg, err := snapshot.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case config.BackendS3:
		glog.Infof("storing envs in bucket %s at %s", cfg.S3Bucket, cfg.S3Endpoint)
		s3, err := snapshot.NewS3Backend(ctx, snapshot.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3, func() {}, nil
	default:
		glog.Infof("storing envs in %s", cfg.EnvPath)
		files, err := snapshot.NewFileBackend(cfg.EnvPath)
		if err != nil {
			return nil, nil, err
		}
		return files, func() {}, nil
	}
}

// openGate returns a nil gate when login is disabled.
func openGate(cfg config.Config) (*auth.Gate, func(), error) {
	if !cfg.EnableLogin {
		return nil, func() {}, nil
	}
	secret, err := auth.LoadSecret(filepath.Join(cfg.EnvPath, auth.SecretFile), cfg.ForceNewCookie)
	if err != nil {
		return nil, nil, err
	}
	creds, err := auth.NewCredentials(cfg.Username, cfg.Password)
	if err != nil {
		return nil, nil, err
	}

	var sessions session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		glog.Infof("using redis for login sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		sessions = redisStore
	} else {
		glog.Infof("using process memory for login sessions")
		sessions = session.NewMemoryStore()
	}
	return auth.NewGate(secret, creds, sessions, cfg.CookieTTL), func() { _ = sessions.Close() }, nil
}

// lateWalker forwards to a broker assigned after construction.
type lateWalker struct {
	broker *broker.Broker
}

func (w *lateWalker) Walk(ctx context.Context, fn func(eid string, p *pane.Pane)) {
	if w.broker != nil {
		w.broker.Walk(ctx, fn)
	}
}
