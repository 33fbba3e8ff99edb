package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/adherence"
	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/config"
	"github.com/hray3182/DoseLine/internal/consumer"
	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/lease"
	"github.com/hray3182/DoseLine/internal/logger"
	"github.com/hray3182/DoseLine/internal/models"
	"github.com/hray3182/DoseLine/internal/notify"
	"github.com/hray3182/DoseLine/internal/repository"
	"github.com/hray3182/DoseLine/internal/rrule"
	"github.com/hray3182/DoseLine/internal/scheduler"
	"github.com/hray3182/DoseLine/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat, "doseline")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	loc, err := cfg.Location()
	if err != nil {
		zl.Fatal("Invalid timezone", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	zl.Info("Connected to database")

	if err := db.Migrate(ctx, zl); err != nil {
		zl.Fatal("Failed to run migrations", zap.Error(err))
	}
	zl.Info("Database migrations completed")

	reminderRepo := repository.NewReminderRepository(db.Pool)
	logRepo := repository.NewAdherenceLogRepository(db.Pool)
	prescriptionRepo := repository.NewPrescriptionRepository(db.Pool)
	patientRepo := repository.NewPatientRepository(db.Pool)

	dispatcher := notify.NewDispatcher(zl, cfg.Notify.RatePerSec, cfg.Notify.Timeout)
	if cfg.Notify.BaseURL != "" {
		httpProvider := notify.NewHTTPProvider(cfg.Notify.BaseURL, cfg.Notify.APIKey, cfg.Notify.Timeout, zl)
		for _, ch := range []models.Channel{models.ChannelPush, models.ChannelSMS, models.ChannelEmail} {
			dispatcher.Register(ch, httpProvider)
		}
		zl.Info("Notification service configured", zap.String("base_url", cfg.Notify.BaseURL))
	} else {
		zl.Warn("NOTIFY_BASE_URL not set, PUSH/SMS/EMAIL notifications disabled")
	}
	if cfg.Telegram.Token != "" {
		tgAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			zl.Fatal("Failed to create Telegram API", zap.Error(err))
		}
		dispatcher.Register(models.ChannelTelegram, notify.NewTelegramProvider(tgAPI, patientRepo))
		zl.Info("Telegram notifications enabled", zap.String("bot", tgAPI.Self.UserName))
	}

	clk := clock.System{Location: loc}
	reminders := adherence.NewService(reminderRepo, logRepo, prescriptionRepo, patientRepo, dispatcher, clk, loc, zl)

	materializer := scheduler.NewMaterializer(reminderRepo, logRepo, dispatcher, clk, loc,
		rrule.ParseBoundary(cfg.Scheduler.CadenceBoundary), zl)
	sweeper := scheduler.NewSweeper(logRepo, clk)
	sched := scheduler.New(materializer, sweeper, cfg.Scheduler.MaterializeInterval, cfg.Scheduler.SweepInterval, zl)
	reminders.SetTrigger(sched)

	ops := server.New(cfg.OpsAddr, zl)
	ops.AddCheck("database", db)

	if cfg.Redis.Addr != "" {
		client, err := lease.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zl.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		jobLease := lease.NewRedisLease(client, leaseOwner())
		sched.SetLease(jobLease)
		ops.AddCheck("redis", jobLease)
		zl.Info("Job lease enabled", zap.String("addr", cfg.Redis.Addr))
	}

	go sched.Start(ctx)

	if cfg.Kafka.Enabled() {
		dispenses := consumer.NewDispenseConsumer(consumer.NewReader(cfg.Kafka), reminders, zl)
		defer dispenses.Close()
		go func() {
			if err := dispenses.Run(ctx); err != nil {
				zl.Error("Dispense consumer error", zap.Error(err))
			}
		}()
		zl.Info("Dispense intake enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.DispenseTopic),
		)
	} else {
		zl.Info("KAFKA_BROKERS not set, dispense intake disabled")
	}

	go func() {
		if err := ops.Start(); err != nil {
			zl.Error("Ops server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		zl.Error("Ops server shutdown error", zap.Error(err))
	}
	dispatcher.Wait()
	zl.Info("Stopped")
}

func leaseOwner() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "doseline"
	}
	return hostname + "-" + uuid.NewString()[:8]
}
