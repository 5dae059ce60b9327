package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fibreville/tigris/internal/config"
	"github.com/fibreville/tigris/internal/database"
	"github.com/fibreville/tigris/internal/events"
	"github.com/fibreville/tigris/internal/handlers"
	mW "github.com/fibreville/tigris/internal/middleware"
	"github.com/fibreville/tigris/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("server.port", "PORT")

	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	viper.BindEnv("ledger.admin_id", "LEDGER_ADMIN_ID")
	viper.BindEnv("ledger.admin_name", "LEDGER_ADMIN_NAME")
	viper.BindEnv("ledger.initial_money", "LEDGER_INITIAL_MONEY")
	viper.BindEnv("ledger.tax_account_id", "LEDGER_TAX_ACCOUNT_ID")
	viper.BindEnv("ledger.tax_rate_percent", "LEDGER_TAX_RATE_PERCENT")
	viper.BindEnv("ledger.tax_free_accounts", "LEDGER_TAX_FREE_ACCOUNTS")
	viper.BindEnv("ledger.admin_tax_free", "LEDGER_ADMIN_TAX_FREE")
	viper.BindEnv("ledger.basic_income", "LEDGER_BASIC_INCOME")
	viper.BindEnv("payroll.enabled", "PAYROLL_ENABLED")
	viper.BindEnv("payroll.schedule", "PAYROLL_SCHEDULE")
	viper.BindEnv("directory.url", "DIRECTORY_URL")
	viper.BindEnv("directory.api_key", "DIRECTORY_API_KEY")
	viper.BindEnv("directory.name_cache_ttl", "NAME_CACHE_TTL")
	viper.BindEnv("rabbitmq.url", "RABBITMQ_URL")

	if err := viper.ReadInConfig(); err != nil {
		logger.WithError(err).Info("config file not found, using environment and defaults")
	}

	ledgerCfg, err := config.LoadLedgerConfig()
	if err != nil {
		logger.WithError(err).Fatal("invalid ledger configuration")
	}
	if viper.GetString("jwt.secret_key") == "" {
		logger.Fatal("JWT_SECRET_KEY must be set")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	db, err := database.InitDB(startupCtx, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	if err := database.EnsureSchema(startupCtx, db); err != nil {
		logger.WithError(err).Fatal("failed to prepare schema")
	}
	if err := database.Bootstrap(startupCtx, db, database.BootstrapConfig{
		AdminID:      ledgerCfg.AdminID,
		AdminName:    ledgerCfg.AdminName,
		InitialMoney: ledgerCfg.InitialMoney,
		TaxAccountID: ledgerCfg.TaxAccountID,
	}, logger); err != nil {
		logger.WithError(err).Fatal("failed to bootstrap ledger")
	}

	redisClient := database.InitRedis(startupCtx, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var resolver services.NameResolver = services.StaticResolver{ledgerCfg.AdminID: ledgerCfg.AdminName}
	if ledgerCfg.DirectoryURL != "" {
		resolver = services.NewDirectoryClient(ledgerCfg.DirectoryURL, ledgerCfg.DirectoryAPIKey)
	}

	var publisher events.Publisher = &events.FallbackPublisher{Log: logger}
	if ledgerCfg.RabbitMQURL != "" {
		producer, err := events.NewEventProducer(ledgerCfg.RabbitMQURL, logger)
		if err != nil {
			logger.WithError(err).Warn("failed to connect to rabbitmq, ledger events will not be published")
		} else {
			publisher = producer
		}
	}
	defer publisher.Close()

	accountStore := services.NewAccountStore(db)
	nameService := services.NewNameService(accountStore, redisClient, resolver, ledgerCfg.NameCacheTTL, logger)
	ledger := services.NewLedgerService(
		db,
		accountStore,
		services.NewJobStore(db),
		services.NewTransactionLog(db),
		nameService,
		publisher,
		logger,
		services.LedgerPolicy{
			TaxAccountID:   ledgerCfg.TaxAccountID,
			TaxRatePercent: ledgerCfg.TaxRatePercent,
			TaxFreeIDs:     ledgerCfg.TaxFreeIDs(),
			BasicIncome:    ledgerCfg.BasicIncome,
		},
	)
	ledgerHandler := handlers.NewLedgerHandler(ledger, nameService, ledgerCfg.AdminID, logger)

	var payroll *services.PayrollScheduler
	if ledgerCfg.PayrollEnabled {
		payroll = services.NewPayrollScheduler(ledger, ledgerCfg.AdminID, ledgerCfg.PayrollSchedule, logger)
		if err := payroll.Start(); err != nil {
			logger.WithError(err).Fatal("failed to start payroll scheduler")
		}
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)
		ledgerHandler.Routes(r)
	})

	viper.SetDefault("server.port", "8080")
	server := &http.Server{
		Addr:         ":" + viper.GetString("server.port"),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if payroll != nil {
		select {
		case <-payroll.Stop().Done():
		case <-ctx.Done():
			logger.Warn("payroll run still in progress at shutdown")
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}

	logger.Info("server stopped")
}
