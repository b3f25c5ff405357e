package main

import (
	"allocation-service/internal/api"
	"allocation-service/internal/cache"
	"allocation-service/internal/config"
	"allocation-service/internal/consumer"
	"allocation-service/internal/events"
	"allocation-service/internal/metrics"
	"allocation-service/internal/repository"
	"allocation-service/internal/service"
	"allocation-service/internal/sharding"
	"allocation-service/internal/stock"
	"allocation-service/migrations"
	"context"
	"database/sql"
	"fmt"
	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func connectDB(dbConfig config.DBConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", dbConfig.DSN())
		if err == nil {
			err = db.Ping()
			if err == nil {
				logger.Info().Msgf("Connected to DB %s", dbConfig.Name)
				return db, nil
			}
		}
		logger.Warn().Err(err).Msgf("Retry %d: Failed to connect to DB %s (%s:%s)", i+1, dbConfig.Name, dbConfig.Host, dbConfig.Port)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %v", dbConfig.Name, dbConfig.Host, dbConfig.Port, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	mainDB, err := connectDB(cfg.MainDB)
	if err != nil {
		panic(err)
	}

	// DB1 doubles as the first order shard
	shards := []*sql.DB{mainDB}
	for _, shardConfig := range cfg.OrderShards()[1:] {
		db, err := connectDB(shardConfig)
		if err != nil {
			panic(err)
		}
		shards = append(shards, db)
	}

	if err := migrations.AutoMigrateMain(3, mainDB); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate allocation tables")
	}
	if err := migrations.AutoMigrateOrders(3, shards...); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate orders tables")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	m := metrics.New("allocation")
	redisCache := cache.NewRedisCache(rdb, cfg.RuleCacheTTL, cfg.IdempotentTTL)
	stockClient := stock.NewClient(cfg.StockServiceURL, cfg.StockTimeout)

	var publisher service.EventPublisher = events.NopPublisher{}
	if !cfg.IsTest() {
		kafkaWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.AllocationTopic)
		defer kafkaWriter.Close()
		publisher = events.NewKafkaPublisher(kafkaWriter)
	}

	router := sharding.NewShardRouter(len(shards))
	orderRepo := repository.NewOrderRepository(shards, router)
	ruleRepo := repository.NewRuleRepository(mainDB)
	masterRepo := repository.NewMasterRepository(mainDB)
	settingsRepo := repository.NewSettingsRepository(mainDB)
	reservationRepo := repository.NewReservationRepository(mainDB)

	ruleService := service.NewRuleService(ruleRepo, redisCache, m)
	settingsService := service.NewSettingsService(settingsRepo)
	orderService := service.NewOrderService(orderRepo, masterRepo, settingsRepo, reservationRepo, ruleService, redisCache, stockClient, publisher, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.IsTest() {
		reader := config.NewKafkaReader(cfg.KafkaBrokers, cfg.OrderLineTopic, cfg.ConsumerGroupID)
		go consumer.NewConsumer(reader, orderService, m).Start(ctx)
	}

	e := echo.New()

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateLimitBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	api.RegisterRoutes(e, api.NewOrderHandler(orderService), api.NewRuleHandler(ruleService, settingsService), cfg.JWTSecret, m.Handler())

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil {
			logger.Info().Err(err).Msg("Server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down server")
	}
}
