// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-mining-app/internal/model"
	"telegram-mining-app/internal/pkg/lock"
	"telegram-mining-app/internal/service"
)

// AccountHandler handles account and daily bonus commands.
type AccountHandler struct {
	accountService  *service.AccountService
	bonusService    *service.BonusService
	referralService *service.ReferralService
	userLock        *lock.UserLock
	signupBonus     int64
	nonToTon        float64
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(
	accountService *service.AccountService,
	bonusService *service.BonusService,
	referralService *service.ReferralService,
	userLock *lock.UserLock,
	signupBonus int64,
	nonToTon float64,
) *AccountHandler {
	return &AccountHandler{
		accountService:  accountService,
		bonusService:    bonusService,
		referralService: referralService,
		userLock:        userLock,
		signupBonus:     signupBonus,
		nonToTon:        nonToTon,
	}
}

func senderName(sender *tele.User) string {
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}

// HandleStart handles the /start command. A numeric payload is the
// inviter's ID from a referral deep link: the newcomer is created with
// that upline and the referral cascade fires once for the signup.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	var upline *int64
	if payload := c.Message().Payload; payload != "" {
		if inviterID, err := strconv.ParseInt(payload, 10, 64); err == nil && inviterID != sender.ID {
			upline = &inviterID
		}
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	user, created, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender), upline)
	if err != nil {
		return c.Reply("❌ Could not set up your account, please try again later.")
	}

	// The cascade only fires for a genuinely new signup; a returning
	// user re-opening a referral link must not reward anyone again.
	if created && upline != nil {
		if err := h.referralService.RewardReferral(ctx, *upline, sender.ID, h.signupBonus); err != nil &&
			!errors.Is(err, service.ErrAlreadyRewarded) {
			log.Error().Err(err).Int64("inviter_id", *upline).Msg("Failed to reward referral signup")
		}
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"👋 Welcome, @%s!\n\n"+
				"Your account is ready. Commands:\n"+
				"/mine - start a 24h mining session\n"+
				"/balance - your NON balance\n"+
				"/bonus - claim the daily bonus\n"+
				"/tasks - social tasks\n"+
				"/ref - your referral stats\n"+
				"/top - leaderboard",
			senderName(sender),
		))
	}

	return c.Reply(fmt.Sprintf(
		"👋 Welcome back, @%s!\n\nBalance: %d NON",
		senderName(sender), user.Balance,
	))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender), nil)
	if err != nil {
		return c.Reply("❌ Could not load your balance, please try again later.")
	}

	return c.Reply(fmt.Sprintf(
		"💰 Balance: %d NON\n≈ %.6f TON",
		user.Balance, model.NonToTon(user.Balance, h.nonToTon),
	))
}

// HandleBonus handles the /bonus command: the daily bonus claim with its
// 24-hour cooldown.
func (h *AccountHandler) HandleBonus(c tele.Context) error {
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

	claim, err := h.bonusService.Claim(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrBonusCooldown) {
			remaining, rerr := h.bonusService.Remaining(ctx, sender.ID)
			if rerr != nil {
				return c.Reply("⏳ Daily bonus is still on cooldown.")
			}
			return c.Reply(fmt.Sprintf(
				"⏳ Next daily bonus in %02d:%02d:%02d.",
				remaining/3600, (remaining%3600)/60, remaining%60,
			))
		}
		return c.Reply("❌ Could not claim the bonus, please try again later.")
	}

	return c.Reply(fmt.Sprintf(
		"🎁 Daily bonus claimed: +%d NON (day %d)\nBalance: %d NON",
		claim.Reward, claim.BonusDay%7+1, claim.Balance,
	))
}
