package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"furniture-store/internal/auth"
	"furniture-store/internal/config"
	"furniture-store/internal/handler"
	"furniture-store/internal/infrastructure"
	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json, toml, env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stderrLogger := zerolog.New(os.Stderr)
		stderrLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger, err := infrastructure.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		stderrLogger := zerolog.New(os.Stderr)
		stderrLogger.Fatal().Err(err).Msg("failed to build logger")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	if cfg.TracingEnabled {
		shutdownTracing, err := infrastructure.InitTracing(cfg.ServiceName, os.Stdout)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("failed to flush traces")
			}
		}()
	}

	// Initialize database connection
	db, err := infrastructure.ConnectDatabase(cfg.Database, logger)
	if err != nil {
		return err
	}

	// Perform all database migrations
	if err := infrastructure.MigrateAllSchemas(db); err != nil {
		return err
	}

	// Initialize services
	authzService, err := service.NewAuthorizationService()
	if err != nil {
		return err
	}
	userService := service.NewUserService(db, authzService, cfg.BcryptCost)
	authService, err := service.NewAuthenticationService(userService, auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL), cfg.BcryptCost)
	if err != nil {
		return err
	}
	productService := service.NewProductService(db, authzService)

	var publisher service.EventPublisher = service.LogEventPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := infrastructure.NewKafkaEventPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic, cfg.KafkaPublishTimeout, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaOrderTopic).Msg("publishing order events to kafka")
	}

	orderService := service.NewOrderService(db, authzService, publisher)
	invoiceService := service.NewInvoiceService(db, authzService, publisher)

	var cartService service.CartService
	if cfg.RedisAddr != "" {
		redisClient, err := infrastructure.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		cartStore := infrastructure.NewRedisCartStore(redisClient, cfg.CartTTL)
		cartService = service.NewCartService(db, cartStore, authzService, orderService)
	}

	// Bootstrap admin and sample data
	seedManager := infrastructure.NewSeedDataManager(userService, productService)
	if err := seedManager.SeedAll(ctx, cfg); err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	router := handler.NewRouter(handler.Services{
		Auth:          authService,
		Authorization: authzService,
		Users:         userService,
		Products:      productService,
		Orders:        orderService,
		Invoices:      invoiceService,
		Cart:          cartService,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.ServerPort).Bool("cart", cartService != nil).Msg("starting furniture store API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
