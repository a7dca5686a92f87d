package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/config"
	"github.com/iliyamo/experience-booking/internal/database"
	"github.com/iliyamo/experience-booking/internal/handler"
	"github.com/iliyamo/experience-booking/internal/mailer"
	"github.com/iliyamo/experience-booking/internal/middleware"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/payment"
	"github.com/iliyamo/experience-booking/internal/queue"
	"github.com/iliyamo/experience-booking/internal/repository"
	"github.com/iliyamo/experience-booking/internal/router"
	"github.com/iliyamo/experience-booking/internal/scheduler"
	"github.com/iliyamo/experience-booking/internal/service"
	"github.com/iliyamo/experience-booking/internal/sms"
)

// availabilityPath is the route whose cached responses a booking change
// invalidates.
const availabilityPath = "/api/bookings/available/%d"

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.Load()
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		logger.Error("connect database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	bookings := repository.NewBookingRepo(db)
	capacity := repository.NewCapacityRepo(db)
	experiences := repository.NewExperienceRepo(db)
	partners := repository.NewPartnerRepo(db)
	smsLogs := repository.NewSmsLogRepo(db)

	if err := prepareDatabase(cfg, db, capacity, partners, logger); err != nil {
		logger.Error("prepare database", "err", err)
		os.Exit(1)
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis unavailable: rate limiting, caching and webhook de-duplication are off")
	} else {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	rateCfg := config.LoadRateLimitConfig()

	campaign := service.Campaign{
		Start:       cfg.Campaign.Start,
		Location:    cfg.Campaign.Location,
		WindowDays:  cfg.Campaign.WindowDays,
		Ceiling:     cfg.Campaign.Ceiling,
		CountryCode: cfg.Campaign.CountryCode,
	}

	// Notifications: the queue when enabled, inline mail otherwise.
	mail := mailer.New(cfg.Mail, logger)
	var notifier *queue.Notifier
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if cfg.Queue.Enabled {
		notifier = queue.NewNotifier(queue.NewPublisher(cfg.Queue.URL), mail, logger)
		consumer := queue.NewConsumer(cfg.Queue.URL, mail, "", logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("confirmation consumer stopped", "err", err)
			}
		}()
	} else {
		notifier = queue.NewNotifier(nil, mail, logger)
	}

	sender := sms.NewSender(cfg.Twilio, logger)
	gateway := payment.NewStripeGateway(cfg.Stripe, cfg.IsProduction())
	if !gateway.VerifiesSignatures() {
		if cfg.IsProduction() {
			logger.Error("STRIPE_WEBHOOK_SECRET is not set: payment webhooks will be refused")
		} else {
			logger.Warn("STRIPE_WEBHOOK_SECRET is not set: accepting unverified payment webhooks")
		}
	}

	invalidator := middleware.NewCacheInvalidator(cacheCfg, rdb, availabilityPath, logger)
	availability := service.NewAvailabilityService(experiences, capacity, campaign)
	ledger := service.NewLedgerService(bookings, experiences, availability, logger).WithCache(invalidator)
	var dedup service.EventDeduper
	if rdb != nil {
		dedup = payment.NewRedisDeduper(rdb, 0)
	}
	payments := service.NewPaymentService(ledger, notifier, dedup, gateway, cfg.BaseURL, logger)
	reminders := service.NewReminderService(bookings, sender, smsLogs, campaign, logger)
	replies := service.NewReplyService(bookings, ledger, sender, smsLogs, cfg.Campaign.CountryCode, logger)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())

	var signature handler.SignatureChecker
	if cfg.Twilio.ValidateSignature {
		signature = sms.NewSignatureValidator(cfg.Twilio.AuthToken, cfg.Twilio.WebhookURL)
	}

	limit := middleware.NewTokenBucket(rateCfg, rdb, logger)
	router.RegisterRoutes(e)
	router.RegisterExperiences(e, handler.NewPublicExperienceHandler(experiences), limit)
	router.RegisterBooking(e, handler.NewBookingHandler(availability, ledger), limit, middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterPayment(e, handler.NewPaymentHandler(gateway, payments, logger))
	router.RegisterSMS(e, handler.NewSMSHandler(replies, signature, logger))
	router.RegisterPartner(e,
		handler.NewPartnerAuthHandler(partners, cfg.JWTSecret, cfg.AccessTTLMin),
		handler.NewPartnerExperienceHandler(experiences, bookings, ledger, smsLogs, invalidator),
		cfg.JWTSecret)
	router.RegisterNotifications(e, handler.NewNotificationHandler(reminders), cfg.JWTSecret)

	jobs := scheduler.New(cfg.Campaign.Location, logger)
	if err := jobs.AddReminders(cfg.Campaign.ReminderSpec, reminders); err != nil {
		logger.Error("schedule reminders", "err", err)
		os.Exit(1)
	}
	jobs.Start()
	logger.Info("next reminder sweep", "at", jobs.Next())

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	jobs.Stop(shutdownCtx)
	stop()
	notifier.Wait()
}

// prepareDatabase applies the schema when asked to, brings the capacity
// counters in line with existing bookings and seeds the bootstrap admin.
func prepareDatabase(cfg config.Config, db *sql.DB, capacity *repository.CapacityRepo, partners *repository.PartnerRepo, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("schema applied")
	}
	if err := capacity.Rebuild(ctx, cfg.Campaign.Ceiling); err != nil {
		return err
	}

	if cfg.SeedAdminEmail != "" && cfg.SeedAdminPassword != "" {
		id, err := partners.Create(ctx, "Administrator", cfg.SeedAdminEmail, cfg.SeedAdminPassword, model.RoleAdmin, cfg.BcryptCost)
		switch {
		case errors.Is(err, apperr.ErrConflict):
			log.Info("admin partner already exists", "email", cfg.SeedAdminEmail)
		case err != nil:
			return err
		default:
			log.Info("admin partner created", "id", id, "email", cfg.SeedAdminEmail)
		}
	}
	return nil
}
