package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"vehiql/internal/access"
	"vehiql/internal/api"
	"vehiql/internal/auth"
	"vehiql/internal/booking"
	"vehiql/internal/cache"
	"vehiql/internal/config"
	"vehiql/internal/database"
	"vehiql/internal/dealership"
	"vehiql/internal/events"
	"vehiql/internal/export"
	"vehiql/internal/logging"
	"vehiql/internal/metrics"
	"vehiql/internal/notify"
	"vehiql/internal/ratelimit"
	"vehiql/internal/reminders"
	"vehiql/internal/sheets"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("VEHIQL_CONFIG_PATH"))
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	logger, logCloser := logging.New(os.Stdout, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	c := cache.New(rdb, cfg.CacheTTL(), &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus(&logger)
	c.Subscribe(bus)

	var sinks sync.WaitGroup
	runSink := func(name string, sink events.SinkFunc) {
		a := events.NewAsync(name, 256, sink, &logger)
		bus.SubscribeAll(a.Handle)
		sinks.Add(1)
		go func() {
			defer sinks.Done()
			a.Run(ctx)
		}()
	}

	var admin, customer notify.Channel
	var telegram *notify.TelegramChannel
	if cfg.Notify.Telegram.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Notify.Telegram.BotToken)
		if err != nil {
			logger.Error().Err(err).Msg("telegram disabled")
		} else {
			telegram = notify.NewTelegramChannel(bot, cfg.Notify.Telegram.ChatIDs)
			admin = telegram
		}
	}
	if cfg.Notify.Email.SMTPHost != "" {
		dialer := notify.NewSMTPDialer(cfg.Notify.Email.SMTPHost, cfg.Notify.Email.SMTPPort,
			cfg.Notify.Email.Username, cfg.Notify.Email.Password)
		customer = notify.NewEmailChannel(dialer, cfg.Notify.Email.From)
	}
	retry := notify.DefaultRetryConfig()
	retry.MaxRetries = cfg.NotifyMaxRetries()
	sender := notify.NewSender(cfg.NotifyRate(), retry, logger)
	if admin != nil || customer != nil {
		notifier := notify.NewNotifier(admin, customer, sender, cfg.Dealership.Name, logger)
		runSink("notify", notifier.Deliver)
	}

	if customer != nil && cfg.Reminders.Enabled {
		scheduler, err := reminders.NewScheduler(reminders.SchedulerConfig{
			Timezone:    cfg.Reminders.Timezone,
			DailyHour:   cfg.Reminders.DailyHour,
			DailyMinute: cfg.Reminders.DailyMinute,
		}, db, customer, sender, cfg.Dealership.Name, logger)
		if err != nil {
			logger.Error().Err(err).Msg("reminders disabled")
		} else {
			go scheduler.Start(ctx)
		}
	}

	if brokers := events.SplitBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		kafkaSink := events.NewKafkaSink(events.NewKafkaWriter(brokers), cfg.KafkaTopicPrefix())
		defer kafkaSink.Close()
		runSink("kafka", kafkaSink.Deliver)
	}

	if cfg.Sheets.Enabled {
		client, err := sheets.NewClient(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID)
		if err != nil {
			logger.Error().Err(err).Msg("sheets mirror disabled")
		} else {
			mirror := sheets.NewSheetsService(client, cfg.Sheets.SheetName, logger)
			if err := mirror.EnsureHeader(ctx); err != nil {
				logger.Warn().Err(err).Msg("sheets header check failed")
			}
			runSink("sheets", mirror.Deliver)
		}
	}

	var reportSender export.DocumentSender
	if telegram != nil && cfg.Notify.MonthlyReport {
		reportSender = telegram
	}
	exporter := export.NewService(db, reportSender, logger)
	if reportSender != nil {
		go exporter.RunMonthly(ctx)
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimitBurst())
	go limiter.Run(ctx, time.Minute)

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, database.BackupConfig{
			Enabled:       true,
			Interval:      cfg.BackupInterval(),
			Dir:           cfg.BackupDir(),
			RetentionDays: cfg.BackupRetentionDays(),
		}, &logger)
		go backups.Start(ctx)
	}

	go startHealthServer(ctx, cfg.HealthPort(), db, rdb, &logger)
	if cfg.Monitoring.GRPCHealthPort > 0 {
		go startGRPCHealth(ctx, cfg.Monitoring.GRPCHealthPort, db, &logger)
	}
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.PrometheusPort(), &logger)
	}

	dealer := dealership.NewService(db, c, bus, cfg.DealershipProfile(), logger)
	server := api.NewHTTPServer(api.Deps{
		Store:      db,
		Verifier:   auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Access:     access.NewService(db, cfg.Auth.Admins, logger),
		Bookings:   booking.NewService(db, dealer, bus, cfg.MaxAdvanceDays(), &logger),
		Dealership: dealer,
		Export:     exporter,
		Events:     bus,
		Limiter:    limiter,
	}, logger)

	logger.Info().Str("addr", cfg.ListenAddr()).Msg("vehiql started")
	if err := server.Start(ctx, cfg.ListenAddr(), cfg.ReadTimeout(), cfg.WriteTimeout()); err != nil {
		logger.Error().Err(err).Msg("api server error")
		stop()
	}

	sinks.Wait()
	logger.Info().Msg("vehiql stopped")
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, fmt.Sprintf(":%d", port), mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, fmt.Sprintf(":%d", port), mux, "metrics", logger)
}

func serve(ctx context.Context, addr string, h http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msgf("%s server error", name)
	}
}

// startGRPCHealth serves grpc.health.v1, reporting NOT_SERVING while sqlite is unreachable.
func startGRPCHealth(ctx context.Context, port int, db *database.DB, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Msg("grpc health listen failed")
		return
	}

	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			status := healthpb.HealthCheckResponse_SERVING
			ctxPing, cancel := context.WithTimeout(ctx, time.Second)
			if err := db.PingContext(ctxPing); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			cancel()
			hs.SetServingStatus("", status)

			select {
			case <-ctx.Done():
				hs.Shutdown()
				gs.GracefulStop()
				return
			case <-ticker.C:
			}
		}
	}()

	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}
