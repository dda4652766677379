package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fund-admin-backend/config"
	"fund-admin-backend/internal/api"
	"fund-admin-backend/internal/auth"
	"fund-admin-backend/internal/database"
	"fund-admin-backend/internal/logging"
	"fund-admin-backend/internal/waterfall"
)

func main() {
	configPath := flag.String("config", "config.json", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Msg("Structured logging initialized")

	// Database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Optional Redis advisory lock
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, advisory locking disabled")
			redisClient = nil
		}
	}
	lock := database.NewRedisDistributionLock(redisClient, database.DefaultLockTTL)

	// Repositories and engine
	repo := database.NewRepository(db)
	engine := waterfall.NewEngine(
		repo,
		database.NewTierStateReader(repo),
		database.NewDistributionStore(repo),
		database.NewWaterfallCommitter(db),
		logger,
	)

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.AuthConfig.JWTSecret,
		time.Duration(cfg.AuthConfig.AccessTokenMinutes)*time.Minute,
	)
	authService := auth.NewService(repo, jwtManager, logger)
	if err := auth.SeedAdminUser(ctx, repo, cfg.AuthConfig.AdminEmail, cfg.AuthConfig.AdminPassword, logger); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	server := api.NewServer(
		api.ServerConfig{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			ProductionMode: cfg.ServerConfig.ProductionMode,
		},
		repo,
		engine,
		authService,
		jwtManager,
		lock,
		logger,
	)

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info().Msg("Shutdown complete")
}
