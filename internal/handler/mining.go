package handler

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"telegram-mining-app/internal/mining"
	"telegram-mining-app/internal/pkg/lock"
	"telegram-mining-app/internal/repository"
	"telegram-mining-app/internal/service"
)

// MiningHandler handles mining session commands.
type MiningHandler struct {
	accountService *service.AccountService
	minerService   *service.MinerService
	userLock       *lock.UserLock
}

// NewMiningHandler creates a new MiningHandler.
func NewMiningHandler(accountService *service.AccountService, minerService *service.MinerService, userLock *lock.UserLock) *MiningHandler {
	return &MiningHandler{
		accountService: accountService,
		minerService:   minerService,
		userLock:       userLock,
	}
}

func formatRemaining(seconds int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// HandleMine handles the /mine command: starts a session, or reports the
// running one.
func (h *MiningHandler) HandleMine(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender), nil); err != nil {
		return c.Reply("❌ Could not load your account, please try again later.")
	}

	session, credited, err := h.minerService.Start(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, mining.ErrAlreadyMining) {
			return c.Reply(fmt.Sprintf(
				"⛏ Already mining. %s left in this session.",
				formatRemaining(session.Remaining()),
			))
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.Reply("❌ Account not found, send /start first.")
		}
		return c.Reply("❌ Could not start mining, please try again later.")
	}

	if credited > 0 {
		return c.Reply(fmt.Sprintf(
			"⛏ Mining resumed: +%d NON from cycles completed while you were away.\n%s left in this session.",
			credited, formatRemaining(session.Remaining()),
		))
	}

	return c.Reply(fmt.Sprintf(
		"⛏ Mining started! 1 NON every 30 seconds for the next %s.",
		formatRemaining(session.Remaining()),
	))
}

// HandleStatus handles the /status command: the live session snapshot.
func (h *MiningHandler) HandleStatus(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	status := h.minerService.Status(sender.ID)
	if !status.Active {
		return c.Reply("💤 Not mining. Send /mine to start a 24h session.")
	}

	return c.Reply(fmt.Sprintf(
		"⛏ Mining…\nSession: %.1f%% (%s left)\nCurrent cycle: %d%%",
		status.Progress, formatRemaining(status.Remaining), status.CyclePercent,
	))
}
