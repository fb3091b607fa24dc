// Command bed-scheduler drives mattress-pad heating levels from each
// profile's sleep schedule and publishes its decisions to MQTT.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sweeney/bed-scheduler/internal/auth"
	"github.com/sweeney/bed-scheduler/internal/cache"
	"github.com/sweeney/bed-scheduler/internal/config"
	"github.com/sweeney/bed-scheduler/internal/device"
	"github.com/sweeney/bed-scheduler/internal/logging"
	"github.com/sweeney/bed-scheduler/internal/metrics"
	"github.com/sweeney/bed-scheduler/internal/mqtt"
	"github.com/sweeney/bed-scheduler/internal/profile"
	"github.com/sweeney/bed-scheduler/internal/retry"
	"github.com/sweeney/bed-scheduler/internal/runner"
	"github.com/sweeney/bed-scheduler/internal/status"
	"github.com/sweeney/bed-scheduler/internal/store"
	"github.com/sweeney/bed-scheduler/internal/web"
)

const serviceName = "bed-scheduler"

type flags struct {
	httpAddr   string
	interval   time.Duration
	once       bool
	testTime   int64
	printState bool
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	var f flags
	flag.StringVar(&f.httpAddr, "http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	flag.DurationVar(&f.interval, "interval", cfg.TickInterval, "Scheduling interval")
	flag.BoolVar(&f.once, "once", false, "Run one tick and exit")
	flag.Int64Var(&f.testTime, "test-time", 0, "Run one dry-run tick at this unix time and exit")
	flag.BoolVar(&f.printState, "print-state", false, "Print each profile's heating status and exit")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		log.Fatalf("fatal: init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, f, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

// app holds the wired components.
type app struct {
	store     store.Store
	client    device.Client
	refresher auth.Refresher
	resolver  *device.Resolver
	runner    *runner.Runner
	metrics   *metrics.Collector
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, publisher mqtt.Publisher, logger *zap.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	st, err := store.New(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		PostgresDSN: cfg.PostgresDSN,
		SQLitePath:  cfg.SQLitePath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	var ids device.IDCache
	if cfg.RedisAddr != "" {
		rc := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := cache.Ping(ctx, rc); err != nil {
			logger.Warn("redis unavailable, device ids will not be cached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			rc.Close()
		} else {
			c := cache.New(rc, cfg.DeviceIDTTL)
			ids = c
			a.closers = append(a.closers, c.Close)
		}
	}

	a.client = device.NewRealClient(cfg.DeviceAPIURL, cfg.HTTPTimeout, cfg.HeatingDuration, ids, logger)
	a.refresher = auth.NewClient(cfg.AuthAPIURL, cfg.AuthClientID, cfg.AuthClientSecret, cfg.HTTPTimeout, logger)

	inv := retry.New(cfg.RetryAttempts, cfg.RetryBaseDelay, logger)
	inv.OnRetry = func(name string, attempt int, err error) { a.metrics.Retry(name) }

	a.resolver = device.NewResolver(a.client, inv, logger)
	a.resolver.OnFallback = func(side device.Side, err error) { a.metrics.StatusFallback(string(side)) }

	a.runner = runner.New(runner.Options{
		Store:        a.store,
		Refresher:    a.refresher,
		Resolver:     a.resolver,
		Orchestrator: device.NewOrchestrator(a.client, inv, logger),
		Publisher:    publisher,
		Metrics:      a.metrics,
		Logger:       logger,
		Workers:      cfg.Workers,
	})
	return a, nil
}

func run(cfg *config.Config, f flags, logger *zap.Logger) error {
	ctx := context.Background()

	if f.printState {
		a, err := build(ctx, cfg, nil, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return printState(ctx, os.Stdout, a, time.Now())
	}

	if f.testTime != 0 || f.once {
		a, err := build(ctx, cfg, nil, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		var override *time.Time
		if f.testTime != 0 {
			t := time.Unix(f.testTime, 0).UTC()
			override = &t
		}
		rep, err := a.runner.Run(ctx, override)
		if err != nil {
			return err
		}
		return printReport(os.Stdout, rep)
	}

	publisher := mqtt.NewRealPublisher(cfg.MQTTBroker, cfg.MQTTClientID, logger)
	defer publisher.Close()

	a, err := build(ctx, cfg, publisher, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickInterval: f.interval,
		Broker:       cfg.MQTTBroker,
		HTTPAddr:     f.httpAddr,
		StoreBackend: cfg.StoreBackend,
		Workers:      cfg.Workers,
	})
	sched := &scheduler{runner: a.runner, tracker: tracker, mqtt: publisher}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", zap.Error(err))
	}

	if f.httpAddr != "" {
		srv := web.New(web.Options{
			Addr:          f.httpAddr,
			Tracker:       tracker,
			Runner:        sched,
			Metrics:       a.metrics,
			Logger:        logger,
			TriggerSecret: cfg.TriggerSecret,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		if cfg.TriggerSecret == "" {
			logger.Info("TRIGGER_SECRET not set, POST /run disabled")
		}
		logger.Info("http status server listening", zap.String("addr", f.httpAddr))
	}

	logger.Info("started",
		zap.Duration("interval", f.interval),
		zap.String("broker", cfg.MQTTBroker),
		zap.String("store", cfg.StoreBackend),
		zap.Int("workers", cfg.Workers),
	)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctx, sched, publisher, tracker, logger, time.Now, ticker.C, sigCh)
}

// batchRunner is satisfied by *runner.Runner.
type batchRunner interface {
	Run(ctx context.Context, override *time.Time) (runner.Report, error)
}

// scheduler serialises runs from the ticker and the HTTP trigger so only
// one run per profile is ever in flight.
type scheduler struct {
	mu      sync.Mutex
	runner  batchRunner
	tracker *status.Tracker
	mqtt    mqtt.ConnectionStatus
}

func (s *scheduler) Run(ctx context.Context, override *time.Time) (runner.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep, err := s.runner.Run(ctx, override)
	if s.tracker != nil {
		s.tracker.RecordRun(rep, err)
		if s.mqtt != nil {
			s.tracker.SetMQTTConnected(s.mqtt.IsConnected())
		}
	}
	return rep, err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func runLoop(ctx context.Context, sched *scheduler, publisher mqtt.Publisher, tracker *status.Tracker, logger *zap.Logger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			logger.Info("shutting down", zap.String("signal", name))
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    name,
				Retained:  true,
			}
			if tracker != nil {
				if sched.mqtt != nil {
					tracker.SetMQTTConnected(sched.mqtt.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", name)
			}
			if err := publisher.PublishSystem(event); err != nil {
				logger.Warn("failed to publish shutdown event", zap.Error(err))
			}
			return nil

		case <-tick:
			// Errors are logged by the runner and recorded by the tracker.
			sched.Run(ctx, nil)
		}
	}
}

func printReport(w io.Writer, rep runner.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(web.RunResponse{
		Success: true,
		RunID:   rep.RunID,
		DryRun:  rep.DryRun,
		Results: status.ProfilesJSON(status.ReportStates(rep)),
	})
}

// printState prints the live heating status of both sides for every profile.
// Expired credentials are refreshed and persisted as a normal run would.
func printState(ctx context.Context, w io.Writer, a *app, now time.Time) error {
	profiles, err := a.store.ListProfiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		cred, err := ensureCredential(ctx, a, p, now)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", p.OwnerID, err)
			continue
		}
		st := a.resolver.ResolveAll(ctx, cred)
		fmt.Fprintf(w, "%s: right heating=%t level=%d, left heating=%t level=%d\n",
			p.OwnerID,
			st[device.SideRight].IsHeating, st[device.SideRight].Level,
			st[device.SideLeft].IsHeating, st[device.SideLeft].Level,
		)
	}
	return nil
}

func ensureCredential(ctx context.Context, a *app, p profile.Profile, now time.Time) (profile.Credential, error) {
	cred, refreshed, err := auth.Ensure(ctx, a.refresher, p.Credential, now)
	if err != nil {
		return cred, err
	}
	if refreshed {
		if err := a.store.SaveCredential(ctx, p.OwnerID, cred); err != nil {
			return cred, fmt.Errorf("save credential: %w", err)
		}
	}
	return cred, nil
}
