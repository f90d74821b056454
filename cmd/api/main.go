package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/smart-financial-parser/internal/api"
	"github.com/dvloznov/smart-financial-parser/internal/config"
	"github.com/dvloznov/smart-financial-parser/internal/jobs"
	"github.com/dvloznov/smart-financial-parser/internal/jobs/inmemory"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath, "Path to the YAML configuration file")
		addr       = flag.String("addr", "", "HTTP listen address (overrides api.addr)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, isFlagSet("config"))
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	log := logger.NewWithOptions(logger.Options{
		Level:  cfg.Log.Level,
		Format: logger.Format(cfg.Log.Format),
	})
	ctx := logger.WithContext(context.Background(), log)

	res, err := pipeline.BuildDeps(ctx, cfg, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}
	defer res.Close() //nolint:errcheck

	// Uploaded tables stay in memory; the cleaned output is served from the result store.
	cleaning := pipeline.NewCleaningPipeline(res.Deps, pipeline.Options{
		HasHeader:    cfg.Input.HasHeader,
		UploadPrefix: cfg.Output.UploadURI,
	})

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.API.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.API.Workers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, jobs.NewCleanFileHandler(cleaning, jobStore)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	if cfg.API.JobRetention > 0 {
		go pruneJobs(workerCtx, jobStore, cfg.API.JobRetention)
	}

	router := api.NewRouter(api.RouterConfig{
		Publisher:      jobQueue,
		Store:          jobStore,
		Results:        jobStore,
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		Log:            log,
	})

	server := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.API.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop accepting jobs, then let in-flight ones finish before cancelling workers.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// pruneJobs drops finished jobs older than retention until ctx is done.
func pruneJobs(ctx context.Context, store *inmemory.Store, retention time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(retention / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Prune(ctx, now.Add(-retention)); n > 0 {
				log.Info().Int("removed", n).Msg("Pruned finished jobs")
			}
		}
	}
}
