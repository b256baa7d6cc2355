// Package main is the entry point for the mining rewards application:
// the Telegram bot, the mining engine and the web API in one process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-mining-app/internal/api"
	"telegram-mining-app/internal/bot"
	"telegram-mining-app/internal/config"
	"telegram-mining-app/internal/localstore"
	"telegram-mining-app/internal/mining"
	"telegram-mining-app/internal/pkg/db"
	"telegram-mining-app/internal/pkg/lock"
	"telegram-mining-app/internal/repository"
	"telegram-mining-app/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize Redis for per-user local records
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	local := localstore.New(rdb)

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	referralRepo := repository.NewReferralRepository(dbPool.Pool)
	taskRepo := repository.NewTaskRepository(dbPool.Pool)

	// Initialize the mining engine
	manager := mining.NewManager(userRepo, mining.Config{
		Cycle:          cfg.Mining.Cycle(),
		Session:        cfg.Mining.Session(),
		RewardPerCycle: cfg.Mining.RewardPerCycle,
	})

	// Initialize services
	accountService := service.NewAccountService(userRepo)
	minerService := service.NewMinerService(userRepo, manager)
	bonusService := service.NewBonusService(userRepo, local, cfg.Daily.Bonuses, cfg.Daily.Cooldown())
	referralService := service.NewReferralService(
		referralRepo, userRepo, local,
		cfg.Referral.DirectBonus, cfg.Referral.LevelPercents, cfg.Referral.Milestones,
	)
	taskService := service.NewTaskService(taskRepo, local, cfg.TaskCatalog())
	leaderboardService := service.NewLeaderboardService(userRepo, cfg.Display.NonToTon)

	// Initialize user lock
	userLock := lock.NewUserLock()

	// Resume mining sessions left running by a previous process
	resumed, err := minerService.ResumeAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resume mining sessions")
	}
	if resumed > 0 {
		log.Info().Int("count", resumed).Msg("Resumed mining sessions")
	}

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:             cfg,
		AccountService:     accountService,
		MinerService:       minerService,
		BonusService:       bonusService,
		ReferralService:    referralService,
		TaskService:        taskService,
		LeaderboardService: leaderboardService,
		UserLock:           userLock,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Initialize the web API
	apiServer := api.NewServer(
		cfg.HTTP.Addr,
		accountService, minerService, referralService, leaderboardService,
		local, dbPool, cfg.Display.NonToTon,
	)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error().Err(err).Msg("API server failed")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown: stop timers without clearing session markers so
	// the next boot resumes and back-credits them.
	telegramBot.Stop()
	minerService.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}

	log.Info().Msg("Stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0,
			mining_end_time BIGINT,
			last_cycle_tick BIGINT NOT NULL DEFAULT 0,
			upline BIGINT,
			referral_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
		CREATE INDEX IF NOT EXISTS idx_users_mining_end ON users(mining_end_time) WHERE mining_end_time IS NOT NULL;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: Create referral reward guard table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS referral_rewards (
			user_id BIGINT NOT NULL,
			referred_id BIGINT NOT NULL,
			level INT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, referred_id)
		);
		CREATE INDEX IF NOT EXISTS idx_referral_rewards_referred ON referral_rewards(referred_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: referral_rewards table created")

	// Migration 3: Create milestone bonus guard table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS referral_bonuses (
			user_id BIGINT NOT NULL,
			milestone BIGINT NOT NULL,
			bonus BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, milestone)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: referral_bonuses table created")

	// Migration 4: Create claimed tasks guard table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS claimed_tasks (
			user_id BIGINT NOT NULL,
			task_name VARCHAR(255) NOT NULL,
			reward BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, task_name)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: claimed_tasks table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
