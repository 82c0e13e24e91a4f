package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-jwt-auth/internal/cache"
	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/pribylovaa/go-jwt-auth/internal/metrics"
	"github.com/pribylovaa/go-jwt-auth/internal/notify"
	"github.com/pribylovaa/go-jwt-auth/internal/password"
	"github.com/pribylovaa/go-jwt-auth/internal/service"
	"github.com/pribylovaa/go-jwt-auth/internal/session"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"github.com/pribylovaa/go-jwt-auth/internal/storage/memory"
	"github.com/pribylovaa/go-jwt-auth/internal/storage/mongo"
	"github.com/pribylovaa/go-jwt-auth/internal/storage/postgres"
	"github.com/pribylovaa/go-jwt-auth/internal/storage/sqlite"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
	httptransport "github.com/pribylovaa/go-jwt-auth/internal/transport/http"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Подключение к хранилищу c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg.Storage)
	dbCancel()
	if err != nil {
		log.Error("storage_connect_failed",
			slog.String("driver", cfg.Storage.Driver),
			slog.String("err", err.Error()),
		)
		rootCancel()
		os.Exit(1)
	}
	log.Info("storage_connected", slog.String("driver", cfg.Storage.Driver))

	engine, err := token.New(cfg.Auth)
	if err != nil {
		log.Error("token_engine_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}

	hasher, err := password.New(cfg.Password)
	if err != nil {
		log.Error("password_hasher_failed", slog.String("err", err.Error()))
		rootCancel()
		str.Close()
		os.Exit(1)
	}

	// Метрики: собственный реестр плюс стандартные коллекторы.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sessions := session.New(str, engine)
	sessions.SetMetrics(m)

	// Кэш refresh-токенов опционален: без Redis вся проверка идёт через хранилище.
	var rcache cache.RefreshCache
	if cfg.Redis.URL != "" {
		redisCtx, redisCancel := context.WithTimeout(rootCtx, 5*time.Second)
		rcache, err = cache.NewRedisCache(redisCtx, cfg.Redis.URL, cfg.Redis.Prefix)
		redisCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			rootCancel()
			str.Close()
			os.Exit(1)
		}
		sessions.SetRefreshCache(rcache)
		log.Info("redis_connected")
	}

	notifier := notify.New(notify.NewSender(cfg.Mail), cfg.Mail.BaseURL, cfg.Mail.SendTimeout)
	log.Info("notifier_initialized", slog.String("mode", notifier.Status().Mode))

	// Сервис.
	srvc := service.New(str, sessions, hasher, notifier, cfg.Auth)
	srvc.SetMetrics(m)
	log.Info("service_initialized")

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusServiceUnavailable
		body := map[string]any{"status": "not ready", "mail": notifier.Status()}
		if atomic.LoadInt32(&ready) == 1 {
			status = http.StatusOK
			body["status"] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	opsAddr := cfg.HTTP.OpsAddr()
	opsSrv := &http.Server{
		Addr:              opsAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	go func() {
		log.Info("ops_listen_start", "addr", opsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops_serve_failed", slog.String("err", err.Error()))
		}
	}()

	// Фоновая очистка просроченных refresh-токенов.
	startRefreshJanitor(rootCtx, str, m, log, cfg.Janitor.Period, cfg.Timeouts.Store)

	apiAddr := cfg.HTTP.Addr()
	apiSrv := &http.Server{
		Addr: apiAddr,
		Handler: httptransport.NewRouter(srvc, engine, cfg.Auth, httptransport.Options{
			Logger:   log,
			Timeout:  cfg.Timeouts.Request,
			BasePath: cfg.HTTP.BasePath,
			Metrics:  m,
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", apiAddr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	} else {
		log.Info("http_stopped")
	}

	// Письма, уже поставленные в отправку, досылаются.
	notifier.Wait()

	_ = opsSrv.Shutdown(shutdownCtx)

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	if rcache != nil {
		_ = rcache.Close()
	}
	str.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// openStorage подключает хранилище выбранного драйвера.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.URL)
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.URL)
	case config.DriverMongo:
		return mongo.New(ctx, cfg.URL)
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// startRefreshJanitor периодически удаляет просроченные refresh-токены.
// Каждый проход ограничен storeTimeout.
func startRefreshJanitor(ctx context.Context, str storage.Storage, m *metrics.Metrics, log *slog.Logger, period, storeTimeout time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				runCtx, cancel := context.WithTimeout(ctx, storeTimeout)
				n, err := str.DeleteExpiredRefreshTokens(runCtx, time.Now().UTC())
				cancel()
				if err != nil {
					log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
					continue
				}
				m.JanitorDeleted(n)
				if n > 0 {
					log.Info("refresh_janitor_deleted", slog.Int64("count", n))
				}
			}
		}
	}()
}
