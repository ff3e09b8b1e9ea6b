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

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/config"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/feed"
	"github.com/ukydev/fleet-maintenance/internal/handlers"
	"github.com/ukydev/fleet-maintenance/internal/maintenance"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/notify"
	"github.com/ukydev/fleet-maintenance/internal/obs"
	"github.com/ukydev/fleet-maintenance/internal/repairs"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
	"golang.org/x/sync/errgroup"
)

// scheduler is the identity reminders are computed as. It sees every ship.
var scheduler = &models.User{ID: "system", Name: "scheduler", Role: models.RoleMainAdmin}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()
	logger.WithField("database", cfg.Mongo.Database).Info("Connected to MongoDB")

	cols := db.NewCollections(client, cfg.Mongo.Database).WithLogger(logger.WithField("component", "db"))
	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)

	svc := maintenance.NewService(cols.Equipment, cols.Records, maintenance.Config{
		Schedule:       cfg.ScheduleOptions(),
		Locale:         cfg.Schedule.Locale,
		ReminderWindow: cfg.Schedule.ReminderWindow,
		Clock:          schedule.SystemClock{Location: cfg.Schedule.Location},
		Metrics:        metrics,
		Logger:         logger,
	})

	authService, err := auth.NewService(cfg.JWT.Secret, cfg.JWT.Expiration)
	if err != nil {
		return err
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	sink, closeSink := newSink(cfg, logger)
	defer closeSink()

	repairSvc := repairs.NewService(cols.Repairs, cols.Equipment, repairs.Config{
		Notifier: sink,
		Clock:    schedule.SystemClock{Location: cfg.Schedule.Location},
		Metrics:  metrics,
		Logger:   logger,
	})

	router := handlers.NewRouter(handlers.RouterConfig{
		Schedule:  handlers.NewScheduleHandler(svc, logger),
		Repairs:   handlers.NewRepairHandler(repairSvc, logger),
		Profile:   handlers.NewProfileHandler(cols.Users),
		Auth:      middleware.NewAuthMiddleware(authService),
		RateLimit: middleware.NewRateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst, proxies...),
		Metrics:   metrics,
		Logger:    logger,
	})
	server := newHTTPServer(cfg.Port, router)

	dispatcher := notify.NewDispatcher(svc, sink, scheduler, metrics, logger)
	watcher := &feed.Watcher{
		Sources: []feed.Source{
			{Name: db.EquipmentCollectionName, Open: cols.Equipment.WatchEquipments},
			{Name: db.RecordCollectionName, Open: cols.Records.WatchRecords},
		},
		OnChange: dispatcher.Refresh,
		Interval: cfg.ReminderInterval,
		Log:      logger,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// newSink publishes to MQTT when a broker is configured and logs otherwise.
func newSink(cfg *config.Config, logger log.FieldLogger) (notify.Transport, func()) {
	if cfg.MQTT.Broker == "" {
		logger.Info("MQTT_BROKER not set, reminders will be logged")
		return notify.LogSink{Log: logger}, func() {}
	}
	publisher, err := notify.NewMQTTPublisher(notify.MQTTConfig{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Topic:       cfg.MQTT.Topic,
		NoticeTopic: cfg.MQTT.NoticeTopic,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		QoS:         1,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("MQTT unavailable, reminders will be logged")
		return notify.LogSink{Log: logger}, func() {}
	}
	return publisher, publisher.Close
}
