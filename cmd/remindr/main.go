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
	"sync"
	"syscall"
	"time"

	"github.com/dukerupert/remindr/internal/config"
	"github.com/dukerupert/remindr/internal/database"
	"github.com/dukerupert/remindr/internal/logging"
	"github.com/dukerupert/remindr/internal/notify"
	"github.com/dukerupert/remindr/internal/reminder"
	"github.com/dukerupert/remindr/internal/scheduler"
	"github.com/dukerupert/remindr/internal/server"
	"github.com/dukerupert/remindr/internal/store"
	ws "github.com/dukerupert/remindr/internal/websocket"
)

func main() {
	genKeys := flag.Bool("generate-vapid-keys", false, "print a new VAPID key pair and exit")
	flag.Parse()

	if *genKeys {
		pub, priv, err := notify.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate vapid keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("REMINDR_VAPID_PUBLIC_KEY=%s\nREMINDR_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, cfgErr := config.Load()
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfgErr != nil {
		logger.Warn("config", "error", cfgErr)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("remindr stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reminderStore := store.NewReminderStore(db)
	deliveryStore := store.NewDeliveryStore(db)
	pushStore := store.NewPushStore(db)

	hub := ws.NewHub(logger.With("component", "websocket"))
	sinks := []notify.Sink{notify.NewHubSink(hub)}
	var vapidPublicKey string
	if cfg.Push.Enabled() {
		pushSvc := notify.NewPushService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
		sinks = append(sinks, notify.NewPushSink(pushSvc, pushStore, logger.With("component", "webpush")))
		vapidPublicKey = pushSvc.VAPIDPublicKey()
	} else {
		logger.Info("web push disabled, run with -generate-vapid-keys to create a key pair")
	}

	svc := reminder.NewService(reminderStore, cfg.DefaultTimezone, logger.With("component", "reminder"))

	sched := scheduler.New(reminderStore, deliveryStore, scheduler.Options{
		Interval:    cfg.Scheduler.TickInterval,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
	}, logger.With("component", "scheduler"))
	dispatcher := notify.NewDispatcher(deliveryStore, sinks, notify.Options{
		Concurrency: cfg.Dispatch.Concurrency,
		Timeout:     cfg.Dispatch.Timeout,
	}, logger.With("component", "dispatcher"))

	srv := server.New(db, hub, svc, pushStore, vapidPublicKey, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx, sched.Events())
	}()
	go func() {
		defer wg.Done()
		srv.RunCleanup(ctx)
	}()
	sched.Start(ctx)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("remindr running", "addr", httpServer.Addr, "tick", cfg.Scheduler.TickInterval, "timezone", cfg.DefaultTimezone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			sched.Stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	sched.Stop()
	stop()
	wg.Wait()
	return nil
}
