package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/medina-app/medina/internal/alerting"
	"github.com/medina-app/medina/internal/api"
	"github.com/medina-app/medina/internal/breaker"
	"github.com/medina-app/medina/internal/budget"
	"github.com/medina-app/medina/internal/config"
	"github.com/medina-app/medina/internal/gateway"
	"github.com/medina-app/medina/internal/geoip"
	"github.com/medina-app/medina/internal/loadshed"
	"github.com/medina-app/medina/internal/metrics"
	"github.com/medina-app/medina/internal/model"
	"github.com/medina-app/medina/internal/netutil"
	"github.com/medina-app/medina/internal/placecache"
	"github.com/medina-app/medina/internal/popsearch"
	"github.com/medina-app/medina/internal/probe"
	"github.com/medina-app/medina/internal/scanloop"
	"github.com/medina-app/medina/internal/servicemode"
	"github.com/medina-app/medina/internal/state"
)

func main() {
	// 1. Load and validate environment config.
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(envCfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		os.Exit(1)
	}

	// 2. Open and migrate the database.
	db, err := state.OpenDB(filepath.Join(envCfg.DataDir, "medina.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := state.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: migrate database: %v\n", err)
		os.Exit(1)
	}

	// 3. Wire services bottom-up.
	metricRepo := metrics.NewRepo(db)
	metricSvc := metrics.NewService(metrics.ServiceConfig{
		Repo:          metricRepo,
		QueueSize:     envCfg.MetricQueueSize,
		FlushBatch:    envCfg.MetricFlushBatchSize,
		FlushInterval: envCfg.MetricFlushInterval,
	})
	metricSvc.Start()
	defer metricSvc.Stop()

	cacheRepo := placecache.NewRepo(db)
	searchCache := placecache.NewSearchCache(cacheRepo, envCfg.SearchCacheTTL, envCfg.SearchCacheHotSize)
	tileCache := placecache.NewTileCache(cacheRepo, envCfg.TileCacheTTL)

	modeRepo := servicemode.NewRepo(db)
	flagStore := servicemode.NewFlagStore(modeRepo)

	budgetRepo := budget.NewRepo(db)
	enforcer := budget.NewEnforcer(budgetRepo, envCfg.BudgetLimits(), flagStore)

	circuit := breaker.New(breaker.Config{
		FailureThreshold: envCfg.BreakerFailureThreshold,
		HalfOpenDelay:    envCfg.BreakerHalfOpenDelay,
	})

	shedder := loadshed.New(envCfg.MaxConcurrentRequests)
	shedder.OnShed = func(priority int, reason loadshed.Reason) {
		metricSvc.Emit(model.MetricEvent{
			Name:     metrics.EventRequestShed,
			Value:    float64(priority),
			Endpoint: string(reason),
		})
	}

	modeCtrl := servicemode.NewController(modeRepo, flagStore, enforcer, circuit, metricRepo)

	gw := gateway.New(gateway.Config{
		BaseURL:           envCfg.ProviderBaseURL,
		Timeout:           envCfg.ProviderRequestTimeout,
		APIKey:            func() string { return os.Getenv("GOOGLE_PLACES_API_KEY") },
		DefaultLanguage:   envCfg.DefaultLanguage,
		DefaultRegionCode: envCfg.DefaultRegionCode,
	}, searchCache, circuit, enforcer, shedder, metricSvc, flagStore, modeRepo)

	prober := probe.NewManager(probe.Config{
		Health:   modeRepo,
		Metrics:  metricSvc,
		BaseURL:  envCfg.ProviderBaseURL,
		APIKey:   func() string { return os.Getenv("GOOGLE_PLACES_API_KEY") },
		PlaceID:  envCfg.ProbePlaceID,
		Interval: func() time.Duration { return envCfg.ProbeInterval },
		Fetcher:  probe.DirectFetcher(func() time.Duration { return envCfg.ProviderRequestTimeout }),
	})
	prober.Start()
	defer prober.Stop()

	searches := popsearch.NewService(popsearch.NewRepo(db), popsearch.Config{
		RawRetention:       envCfg.RawSearchRetention,
		AggregateRetention: envCfg.AggregateRetention,
		MinUniqueUsers:     envCfg.AggregateMinUniqueUsers,
	})

	alertRepo := alerting.NewRepo(db)
	if err := alertRepo.SeedDefaults(); err != nil {
		log.Printf("[main] seed alert thresholds failed: %v", err)
	}
	evaluator := alerting.NewEvaluator(alertRepo, metricRepo, modeCtrl, flagStore)

	downloader := netutil.NewDirectDownloader(
		func() time.Duration { return 2 * time.Minute },
		func() string { return "medinad/" + api.NewSystemInfo().Version },
	)
	geoSvc := geoip.NewService(geoip.ServiceConfig{
		CacheDir:       envCfg.DataDir,
		DBURL:          envCfg.GeoIPDBURL,
		UpdateSchedule: envCfg.GeoIPUpdateSchedule,
		OpenDB:         geoip.MaxMindOpen,
		Downloader:     &netutil.RetryDownloader{Direct: downloader},
	})
	if err := geoSvc.Start(); err != nil {
		log.Printf("[main] geoip start failed: %v", err)
	}
	defer geoSvc.Stop()

	// 4. Per-minute evaluator loops.
	stopCh := make(chan struct{})
	go scanloop.Run(stopCh, scanloop.DefaultMinInterval, scanloop.DefaultJitterRange, func() {
		if err := modeCtrl.Evaluate(); err != nil {
			log.Printf("[main] mode evaluation failed: %v", err)
		}
	})
	go scanloop.Run(stopCh, scanloop.DefaultMinInterval, scanloop.DefaultJitterRange, func() {
		if err := evaluator.Evaluate(); err != nil {
			log.Printf("[main] alert evaluation failed: %v", err)
		}
	})

	// 5. Cron jobs: cache purges, metric retention, popularity rollups.
	jobs := cron.New()
	mustCron(jobs, "@every 10m", func() {
		if n, err := searchCache.PurgeExpired(); err != nil {
			log.Printf("[main] search cache purge failed: %v", err)
		} else if n > 0 {
			log.Printf("[main] purged %d expired search cache rows", n)
		}
	})
	mustCron(jobs, "@every 10m", func() {
		if n, err := tileCache.PurgeExpired(); err != nil {
			log.Printf("[main] tile cache purge failed: %v", err)
		} else if n > 0 {
			log.Printf("[main] purged %d expired tile chunks", n)
		}
	})
	mustCron(jobs, "30 3 * * *", func() {
		cutoff := time.Now().Add(-envCfg.MetricRetention).UnixNano()
		if n, err := metricRepo.DeleteOlderThan(cutoff, envCfg.MetricCleanupBatchSize); err != nil {
			log.Printf("[main] metric cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("[main] deleted %d expired metric events", n)
		}
	})
	mustCron(jobs, envCfg.RawPurgeSchedule, func() {
		if n, err := searches.PurgeRaw(); err != nil {
			log.Printf("[main] raw search purge failed: %v", err)
		} else if n > 0 {
			log.Printf("[main] purged %d raw search logs", n)
		}
	})
	mustCron(jobs, envCfg.AggregationSchedule, func() {
		if err := searches.Aggregate(); err != nil {
			log.Printf("[main] search aggregation failed: %v", err)
		}
	})
	mustCron(jobs, envCfg.AggregatePurgeSchedule, func() {
		if n, err := searches.PurgeAggregates(); err != nil {
			log.Printf("[main] aggregate purge failed: %v", err)
		} else if n > 0 {
			log.Printf("[main] purged %d search aggregates", n)
		}
	})
	jobs.Start()
	defer jobs.Stop()

	// 6. API server.
	srv := api.NewServer(envCfg.ListenAddress, envCfg.APIPort, envCfg.AdminToken,
		int64(envCfg.APIMaxBodyBytes), api.Deps{
			Gateway:    gw,
			Mode:       modeCtrl,
			ModeRepo:   modeRepo,
			Tiles:      tileCache,
			Searches:   searches,
			Shedder:    shedder,
			Metrics:    metricRepo,
			Alerts:     alertRepo,
			GeoIP:      geoSvc,
			Breaker:    circuit,
			Prober:     prober,
			SystemInfo: api.NewSystemInfo(),
		})

	go func() {
		log.Printf("medinad API server starting on %s:%d", envCfg.ListenAddress, envCfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// 7. Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)
	close(stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func mustCron(c *cron.Cron, spec string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		log.Fatalf("invalid cron spec %q: %v", spec, err)
	}
}
