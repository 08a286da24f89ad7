package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rewired-gh/pumpsentry/internal/api"
	"github.com/rewired-gh/pumpsentry/internal/config"
	"github.com/rewired-gh/pumpsentry/internal/core"
	"github.com/rewired-gh/pumpsentry/internal/logger"
	"github.com/rewired-gh/pumpsentry/internal/stats"
	"github.com/rewired-gh/pumpsentry/internal/storage"
	"github.com/rewired-gh/pumpsentry/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxStreams, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	engine := core.NewEngine(core.Config{
		Accumulator: stats.AccumulatorConfig{
			RingCapacity: cfg.Stats.RingCapacity,
			HistogramMin: cfg.Stats.HistogramMin,
			HistogramMax: cfg.Stats.HistogramMax,
			EMAHalfLife:  cfg.Stats.EMAHalfLife,
		},
		DensityBucketSize:  cfg.Stats.DensityBucketSize,
		RollingMode:        stats.WindowMode(cfg.Stats.RollingWindowMode),
		RollingHorizon:     cfg.Stats.RollingWindowSize,
		Cooldown:           cfg.Alerts.Cooldown,
		DeviationThreshold: cfg.Stats.DeviationThreshold,
	})

	if err := restoreSessions(engine, store); err != nil {
		logger.Warn("Failed to restore persisted sessions: %v", err)
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(
			cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	var notifier api.Notifier
	if telegramClient != nil {
		notifier = telegramClient
	}
	server := api.NewServer(engine, store, notifier, cfg.Server.IngestToken)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP API listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed: %v", err)
		}
	}()

	maintenanceErrors := &errorStreak{}
	if telegramClient != nil {
		maintenanceErrors.notify = telegramClient.SendError
	}
	checkpointTicker := time.NewTicker(cfg.Storage.CheckpointInterval)
	defer checkpointTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-checkpointTicker.C:
				err := checkpointSessions(engine, store)
				if rotateErr := store.RotateStreams(); rotateErr != nil {
					logger.Warn("Failed to rotate streams: %v", rotateErr)
					if err == nil {
						err = rotateErr
					}
				}
				maintenanceErrors.observe(err)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed: %v", err)
	}

	if err := checkpointSessions(engine, store); err != nil {
		logger.Error("Final checkpoint incomplete: %v", err)
	}
	cancel()
	logger.Info("Service stopped")
}

// restoreSessions rebuilds pins, accumulator checkpoints, and rules for
// every persisted stream.
func restoreSessions(engine *core.Engine, store *storage.Storage) error {
	streams, err := store.ListStreams()
	if err != nil {
		return err
	}
	for _, stream := range streams {
		sess, err := engine.Session(stream.ID)
		if err != nil {
			return err
		}

		states, err := store.LoadAccumulatorStates(stream.ID)
		if err != nil {
			return err
		}
		pins, err := store.ListPins(stream.ID)
		if err != nil {
			return err
		}
		for _, bucket := range pins {
			m, err := strconv.ParseFloat(bucket, 64)
			if err != nil {
				logger.Warn("Skipping malformed pin %q on stream %s", bucket, stream.ID)
				continue
			}
			if st, ok := states[bucket]; ok {
				if err := sess.RestoreAccumulator(m, st); err != nil {
					return err
				}
			} else if err := sess.Pin(m); err != nil {
				return err
			}
		}

		rules, err := store.ListRules(stream.ID)
		if err != nil {
			return err
		}
		for _, rule := range rules {
			if _, err := engine.ManageRule(stream.ID, core.RuleOpAdd, rule); err != nil {
				logger.Warn("Skipping invalid persisted rule %s: %v", rule.ID, err)
			}
		}
		logger.Info("Restored stream %s: %d pins, %d rules", stream.ID, len(pins), len(rules))
	}
	return nil
}

// checkpointSessions persists every live accumulator so restarts resume
// from recent statistics. It keeps going past individual failures and
// returns the first one.
func checkpointSessions(engine *core.Engine, store *storage.Storage) error {
	now := time.Now().UTC()
	var firstErr error
	for _, streamID := range engine.StreamIDs() {
		sess, err := engine.Session(streamID)
		if err != nil {
			continue
		}
		for bucket, st := range sess.State() {
			if err := store.SaveAccumulatorState(streamID, bucket, st, now); err != nil {
				logger.Warn("Failed to checkpoint %s on stream %s: %v", bucket, streamID, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// errorStreak forwards the first error of a consecutive failure run to
// the notify func, then stays quiet until a success resets it.
type errorStreak struct {
	notify func(error) error
	active bool
}

func (e *errorStreak) observe(err error) {
	if err == nil {
		e.active = false
		return
	}
	if e.active {
		return
	}
	e.active = true
	if e.notify == nil {
		return
	}
	if sendErr := e.notify(err); sendErr != nil {
		logger.Warn("Failed to send error notification: %v", sendErr)
	}
}
