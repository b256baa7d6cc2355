package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-mining-app/internal/localstore"
	"telegram-mining-app/internal/metrics"
	"telegram-mining-app/internal/model"
)

// Daily bonus errors.
var (
	ErrBonusCooldown = errors.New("daily bonus still on cooldown")
)

// bonusUserStore is the slice of the user repository the scheduler needs.
type bonusUserStore interface {
	GetByID(ctx context.Context, telegramID int64) (*model.User, error)
	IncrementBalance(ctx context.Context, telegramID int64, amount int64) (*model.User, error)
}

// bonusLocalStore holds the per-user cooldown record and ledger.
type bonusLocalStore interface {
	BonusRecord(ctx context.Context, userID int64) (localstore.BonusRecord, error)
	SetBonusRecord(ctx context.Context, userID int64, rec localstore.BonusRecord) error
	AppendLedger(ctx context.Context, userID int64, entry model.LedgerEntry) error
}

// BonusService is the daily bonus scheduler: a cooldown gate producing
// escalating rewards that cycle over the reward table. The table cycles
// by claim count alone; missing a day carries no penalty.
type BonusService struct {
	users    bonusUserStore
	local    bonusLocalStore
	table    []int64
	cooldown time.Duration
	now      func() time.Time
}

// BonusClaim describes one successful daily bonus claim.
type BonusClaim struct {
	Reward   int64
	BonusDay int
	Balance  int64
}

// NewBonusService creates a new BonusService instance.
func NewBonusService(users bonusUserStore, local bonusLocalStore, table []int64, cooldown time.Duration) *BonusService {
	if len(table) == 0 {
		table = []int64{100, 200, 400, 600, 850, 1000, 1500}
	}
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	return &BonusService{
		users:    users,
		local:    local,
		table:    table,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Remaining returns the whole seconds until the user's next eligible
// claim. An absent cooldown record means immediately eligible.
func (s *BonusService) Remaining(ctx context.Context, userID int64) (int64, error) {
	rec, err := s.local.BonusRecord(ctx, userID)
	if err != nil {
		return 0, err
	}
	return bonusRemaining(int64(rec.LastClaim), s.now().UnixMilli(), s.cooldown), nil
}

// Claim grants the user's next daily bonus. Fails with ErrBonusCooldown
// while the cooldown has not elapsed and with the store's not-found
// error when no user record exists. The balance is credited remotely
// first; the cooldown record only advances after the credit landed, so a
// failed write leaves the user eligible to retry.
func (s *BonusService) Claim(ctx context.Context, userID int64) (*BonusClaim, error) {
	rec, err := s.local.BonusRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if remaining := bonusRemaining(int64(rec.LastClaim), now.UnixMilli(), s.cooldown); remaining > 0 {
		return nil, fmt.Errorf("%w: %ds left", ErrBonusCooldown, remaining)
	}

	reward := s.rewardForDay(rec.BonusDay)
	user, err := s.users.IncrementBalance(ctx, userID, reward)
	if err != nil {
		return nil, err
	}

	next := localstore.BonusRecord{
		LastClaim: localstore.Millis(now.UnixMilli()),
		BonusDay:  rec.BonusDay + 1,
	}
	if err := s.local.SetBonusRecord(ctx, userID, next); err != nil {
		// The credit already landed; without the record advance the user
		// could claim again early. Surface the error so the caller can
		// retry the record write.
		return nil, err
	}

	if err := s.local.AppendLedger(ctx, userID, model.LedgerEntry{
		Type:    model.LedgerTypeDailyBonus,
		Amount:  reward,
		Status:  model.LedgerStatusClaimed,
		Content: "Daily bonus claimed",
	}); err != nil {
		// The ledger is not authoritative; the credit stands.
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to append ledger entry")
	}

	metrics.DailyBonusClaims.Inc()
	return &BonusClaim{Reward: reward, BonusDay: rec.BonusDay, Balance: user.Balance}, nil
}

// rewardForDay maps a claim counter to its reward, cycling the table.
func (s *BonusService) rewardForDay(day int) int64 {
	if day < 0 {
		day = 0
	}
	return s.table[day%len(s.table)]
}

// bonusRemaining computes the whole seconds left on the cooldown started
// at lastClaimMs. Zero lastClaim means never claimed and yields zero.
func bonusRemaining(lastClaimMs, nowMs int64, cooldown time.Duration) int64 {
	if lastClaimMs == 0 {
		return 0
	}
	elapsed := (nowMs - lastClaimMs) / 1000
	remaining := int64(cooldown.Seconds()) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
