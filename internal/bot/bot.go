// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-mining-app/internal/config"
	"telegram-mining-app/internal/handler"
	"telegram-mining-app/internal/pkg/lock"
	"telegram-mining-app/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	accountHandler     *handler.AccountHandler
	miningHandler      *handler.MiningHandler
	referralHandler    *handler.ReferralHandler
	taskHandler        *handler.TaskHandler
	leaderboardHandler *handler.LeaderboardHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config             *config.Config
	AccountService     *service.AccountService
	MinerService       *service.MinerService
	BonusService       *service.BonusService
	ReferralService    *service.ReferralService
	TaskService        *service.TaskService
	LeaderboardService *service.LeaderboardService
	UserLock           *lock.UserLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	signupBonus := deps.Config.Referral.SignupBonus
	nonToTon := deps.Config.Display.NonToTon

	b.accountHandler = handler.NewAccountHandler(
		deps.AccountService, deps.BonusService, deps.ReferralService,
		deps.UserLock, signupBonus, nonToTon)
	b.miningHandler = handler.NewMiningHandler(deps.AccountService, deps.MinerService, deps.UserLock)
	b.referralHandler = handler.NewReferralHandler(deps.ReferralService, deps.UserLock, teleBot.Me.Username)
	b.taskHandler = handler.NewTaskHandler(deps.TaskService, deps.UserLock)
	b.leaderboardHandler = handler.NewLeaderboardHandler(deps.LeaderboardService)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	// Account
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/bonus", b.accountHandler.HandleBonus)

	// Mining
	b.bot.Handle("/mine", b.miningHandler.HandleMine)
	b.bot.Handle("/status", b.miningHandler.HandleStatus)

	// Referrals
	b.bot.Handle("/ref", b.referralHandler.HandleRef)
	b.bot.Handle("/milestone", b.referralHandler.HandleMilestone)

	// Tasks
	b.bot.Handle("/tasks", b.taskHandler.HandleTasks)
	b.bot.Handle("/claim", b.taskHandler.HandleClaim)

	// Leaderboard
	b.bot.Handle("/top", b.leaderboardHandler.HandleTop)
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
