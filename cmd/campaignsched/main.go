// cmd/campaignsched/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sendwave/campaignsched/api"
	"github.com/sendwave/campaignsched/config"
	"github.com/sendwave/campaignsched/internal/clock"
	"github.com/sendwave/campaignsched/logger"
	"github.com/sendwave/campaignsched/metrics"
	"github.com/sendwave/campaignsched/scheduler"
	"github.com/sendwave/campaignsched/sendbackend"
	"github.com/sendwave/campaignsched/store"
)

// Version information (set at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	commit    = "unknown"
)

// cliArgs holds every flag the service accepts.
type cliArgs struct {
	ConfigPath  string
	MetricsPort int
	ShowVersion bool
}

// parseFlags reads command-line flags into cliArgs using spf13/pflag.
func parseFlags() cliArgs {
	var args cliArgs
	pflag.StringVar(&args.ConfigPath, "config", "config.json", "Path to the scheduler service's JSON config file")
	pflag.IntVar(&args.MetricsPort, "metrics-port", 0, "Override the metrics server port (0 uses the API port + 1)")
	pflag.BoolVar(&args.ShowVersion, "version", false, "Print version information and exit")
	pflag.Parse()
	return args
}

func showVersion() {
	fmt.Printf("campaignsched v%s\n", version)
	fmt.Printf("Built: %s\n", buildTime)
	fmt.Printf("Commit: %s\n", commit)
}

// main wires the planner, send backend, scheduler, persistence and HTTP
// façade together and runs until interrupted.
func main() {
	args := parseFlags()
	if args.ShowVersion {
		showVersion()
		return
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "campaignsched: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("campaignsched", cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log, args.MetricsPort); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log logger.Logger, metricsPortOverride int) error {
	recStore, err := store.OpenTaskRecordStore(cfg.API.BoltDBPath)
	if err != nil {
		return fmt.Errorf("open task record store: %w", err)
	}
	defer func() {
		if closeErr := recStore.Close(); closeErr != nil {
			log.Warnf("closing task record store: %v", closeErr)
		}
	}()

	mtr := metrics.NewMetrics()
	metricsPort := cfg.API.Port + 1
	if metricsPortOverride > 0 {
		metricsPort = metricsPortOverride
	}
	metricsSrv := metrics.NewServer(mtr, metricsPort)
	go func() {
		if startErr := metricsSrv.Start(); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", startErr)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if stopErr := metricsSrv.Stop(ctx); stopErr != nil {
			log.Warnf("stopping metrics server: %v", stopErr)
		}
	}()

	backend := sendbackend.New(sendbackend.Config{
		MinLatency:         time.Duration(cfg.Backend.MinLatencyMs) * time.Millisecond,
		MaxLatency:         time.Duration(cfg.Backend.MaxLatencyMs) * time.Millisecond,
		SuccessProbability: cfg.Backend.SuccessProbability,
		PerSenderPerMinute: cfg.Rate.PerSenderPerMinute,
		PerSenderPerHour:   cfg.Rate.PerSenderPerHour,
	}).WithMetrics(mtr)

	sendFn := func(ctx context.Context, senderID, recipientID, subject, body string) (string, error) {
		id, sendErr := backend.Send(ctx, senderID, recipientID, subject, body)
		return string(id), sendErr
	}

	var notifier scheduler.Notifier = scheduler.NoopNotifier{}
	if cfg.API.WebhookURL != "" {
		wn := scheduler.NewWebhookNotifier(cfg.API.WebhookURL, log)
		defer wn.Close()
		notifier = wn
	}

	sched := scheduler.New(clock.Real{}, sendFn, log,
		scheduler.WithNotifier(notifier),
		scheduler.WithRecorder(recStore),
		scheduler.WithMetrics(mtr),
	)

	dir := store.NewDirectoryStore()

	apiSrv := api.NewServer(sched, dir)
	mux := http.NewServeMux()
	apiSrv.Routes(mux)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", httpSrv.Addr)
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received signal %s, shutting down", sig)
	case serveErr := <-errCh:
		return fmt.Errorf("http server: %w", serveErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	sched.Reset()
	return nil
}
