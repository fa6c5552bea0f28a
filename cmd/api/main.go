package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/cache"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/db"
	"github.com/geocoder89/authhub/internal/domain/user"
	httpx "github.com/geocoder89/authhub/internal/http"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/geocoder89/authhub/internal/repo/cached"
	"github.com/geocoder89/authhub/internal/repo/instrumented"
	"github.com/geocoder89/authhub/internal/repo/memory"
	"github.com/geocoder89/authhub/internal/repo/mongodb"
	"github.com/geocoder89/authhub/internal/repo/postgres"
	"github.com/geocoder89/authhub/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	shutdownTracer, err := observability.InitTracer(context.Background(), cfg.ServiceName, cfg.Env, cfg.OTelEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	// metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}

	users, closeCache := withUserCache(cfg, instrumented.NewUsersRepo(store, prom), log)

	hasher := security.NewHasher(cfg.BcryptCost)

	seedCtx, cancelSeed := config.WithTimeout(10 * time.Second)
	created, err := db.EnsureAdminUser(seedCtx, users, hasher, cfg)
	cancelSeed()
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("admin user created", "email", cfg.AdminEmail)
	}

	// set up routers with the log
	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Users:    users,
		Tokens:   auth.NewManager(cfg.JWTSecret, cfg.JWTTTL),
		Hasher:   hasher,
		Prom:     prom,
		Gatherer: reg,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		closeCache()
		closeStore()

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// openStore connects the configured backend and returns a close func for it.
func openStore(cfg config.Config, log *slog.Logger) (user.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.DBMigrate {
			if err := db.Migrate(cfg.DBURL); err != nil {
				return nil, nil, err
			}
			log.Info("migrations applied")
		}

		pool, err := db.NewPool(cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewUsersRepo(pool), pool.Close, nil

	case config.DriverMongo:
		client, err := db.NewMongoClient(cfg.MongoURL)
		if err != nil {
			return nil, nil, err
		}

		repo := mongodb.NewUsersRepo(client, cfg.MongoDatabase)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}

		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Error("mongo disconnect failed", "err", err)
			}
		}
		return repo, closeFn, nil

	default:
		log.Warn("using in-memory user store; data is lost on restart")
		return memory.NewUsersRepo(), func() {}, nil
	}
}

// withUserCache puts the guard's FindByID lookups behind the cache chosen by
// cfg.UserCache.
func withUserCache(cfg config.Config, store user.Store, log *slog.Logger) (user.Store, func()) {
	switch cfg.UserCache() {
	case config.CacheOff:
		if cfg.UserCacheTTL > 0 {
			log.Info("user cache disabled; set REDIS_ADDR, or USER_CACHE_LOCAL=true on a single instance")
		}
		return store, func() {}
	case config.CacheLocal:
		log.Warn("in-process user cache enabled; run a single instance only")
		return cached.NewUsersRepo(store, cache.NewMemory(cfg.UserCacheTTL), log), func() {}
	}

	rdb := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rc := cache.NewRedis(rdb, "authhub:user", cfg.UserCacheTTL)

	ctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := rc.Ping(ctx); err != nil {
		// cache errors are non-fatal at request time too
		log.Warn("redis unreachable; continuing", "addr", cfg.RedisAddr, "err", err)
	}

	closeFn := func() {
		if err := rc.Close(); err != nil {
			log.Error("redis close failed", "err", err)
		}
	}
	return cached.NewUsersRepo(store, rc, log), closeFn
}
