package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-mining-app/internal/pkg/lock"
	"telegram-mining-app/internal/service"
)

// ReferralHandler handles referral stats and milestone claim commands.
type ReferralHandler struct {
	referralService *service.ReferralService
	userLock        *lock.UserLock
	botName         string
}

// NewReferralHandler creates a new ReferralHandler.
func NewReferralHandler(referralService *service.ReferralService, userLock *lock.UserLock, botName string) *ReferralHandler {
	return &ReferralHandler{
		referralService: referralService,
		userLock:        userLock,
		botName:         botName,
	}
}

// HandleRef handles the /ref command: the user's invite link and
// referral standing.
func (h *ReferralHandler) HandleRef(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	stats, err := h.referralService.Stats(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Could not load your referral stats, send /start first.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Invites: %d\n", stats.ReferralCount)
	fmt.Fprintf(&b, "🔗 t.me/%s?start=%d\n\n", h.botName, sender.ID)
	fmt.Fprintf(&b, "Direct referrals earn you %d NON each.\nUpline levels earn ", h.referralService.DirectBonus())
	percents := h.referralService.LevelPercents()
	for i, p := range percents {
		if i > 0 {
			b.WriteString(" / ")
		}
		fmt.Fprintf(&b, "%d%%", p)
	}
	b.WriteString(" of the signup bonus.\n")

	if stats.TierReached {
		claimed := false
		for _, m := range stats.ClaimedMilestones {
			if m == stats.CurrentTier.Count {
				claimed = true
				break
			}
		}
		if claimed {
			fmt.Fprintf(&b, "\n🏆 Milestone %d already claimed.", stats.CurrentTier.Count)
		} else {
			fmt.Fprintf(&b, "\n🏆 Milestone %d reached: /milestone to claim %d NON.",
				stats.CurrentTier.Count, stats.CurrentTier.Bonus)
		}
	}

	return c.Reply(b.String())
}

// HandleMilestone handles the /milestone command: claims the one-time
// bonus for the user's current referral milestone.
func (h *ReferralHandler) HandleMilestone(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	stats, err := h.referralService.Stats(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Could not load your referral stats, send /start first.")
	}
	if !stats.TierReached {
		return c.Reply("⚠️ No milestone reached yet. Invite 5 friends to unlock the first one.")
	}

	bonus, err := h.referralService.ClaimMilestone(ctx, sender.ID, stats.CurrentTier.Count)
	if err != nil {
		if errors.Is(err, service.ErrMilestoneClaimed) {
			return c.Reply("⚠️ This milestone was already claimed.")
		}
		if errors.Is(err, service.ErrMilestoneNotReached) {
			return c.Reply("⚠️ No milestone reached yet.")
		}
		return c.Reply("❌ Could not claim the milestone, please try again later.")
	}

	return c.Reply(fmt.Sprintf("🏆 Milestone %d claimed: +%d NON!", stats.CurrentTier.Count, bonus))
}
