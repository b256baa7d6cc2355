package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"telegram-mining-app/internal/metrics"
	"telegram-mining-app/internal/model"
	"telegram-mining-app/internal/repository"
)

// Referral errors.
var (
	ErrAlreadyRewarded     = errors.New("referral already rewarded")
	ErrMilestoneClaimed    = errors.New("milestone already claimed")
	ErrMilestoneNotReached = errors.New("milestone not reached")
)

// maxCascadeDepth bounds the upline walk.
const maxCascadeDepth = 5

// referralStore is the persistence surface of the cascade engine.
type referralStore interface {
	RewardOnce(ctx context.Context, userID, referredID int64, level int, amount int64) (bool, error)
	GetUpline(ctx context.Context, userID int64) (*int64, error)
	ClaimMilestone(ctx context.Context, userID, milestone, bonus int64) (bool, error)
	LevelCounts(ctx context.Context, userID int64) (map[int]int64, error)
	ClaimedMilestones(ctx context.Context, userID int64) ([]int64, error)
}

// referralUserStore is the slice of the user repository the engine needs.
type referralUserStore interface {
	GetByID(ctx context.Context, telegramID int64) (*model.User, error)
}

// referralLedger appends audit entries for referral credits.
type referralLedger interface {
	AppendLedger(ctx context.Context, userID int64, entry model.LedgerEntry) error
}

// ReferralService distributes referral rewards: a fixed direct bonus to
// the inviter and decaying percentage bonuses up the inviter's upline
// chain, plus the one-time milestone bonuses keyed to cumulative
// referral count.
type ReferralService struct {
	store       referralStore
	users       referralUserStore
	ledger      referralLedger
	directBonus int64
	percents    []int64
	milestones  []model.Milestone
}

// NewReferralService creates a new ReferralService instance. percents is
// indexed by upline level minus one; milestones maps referral-count
// thresholds to bonuses.
func NewReferralService(store referralStore, users referralUserStore, ledger referralLedger, directBonus int64, percents []int64, milestones map[int64]int64) *ReferralService {
	if directBonus <= 0 {
		directBonus = 520
	}
	if len(percents) == 0 {
		percents = []int64{25, 15, 10, 5, 2}
	}

	tiers := make([]model.Milestone, 0, len(milestones))
	for count, bonus := range milestones {
		tiers = append(tiers, model.Milestone{Count: count, Bonus: bonus})
	}
	if len(tiers) == 0 {
		tiers = []model.Milestone{
			{Count: 5, Bonus: 1000},
			{Count: 15, Bonus: 3000},
			{Count: 30, Bonus: 7000},
			{Count: 50, Bonus: 15000},
			{Count: 100, Bonus: 40000},
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Count < tiers[j].Count })

	return &ReferralService{
		store:       store,
		users:       users,
		ledger:      ledger,
		directBonus: directBonus,
		percents:    percents,
		milestones:  tiers,
	}
}

// LevelPercents returns the cascade percentage table, indexed by level
// minus one. The same table drives payouts and any user-facing
// disclosure of the program.
func (s *ReferralService) LevelPercents() []int64 {
	return s.percents
}

// DirectBonus returns the fixed reward paid to a direct inviter.
func (s *ReferralService) DirectBonus() int64 {
	return s.directBonus
}

// RewardReferral rewards the inviter and their upline chain for a
// qualifying signup. The inviter receives the fixed direct bonus
// (independent of signupBonus); each existing upline up to five levels
// receives floor(signupBonus * percent / 100). A (rewarder, referred)
// pair is rewarded at most once: a duplicate signup event for the
// inviter returns ErrAlreadyRewarded, and an already-rewarded upline is
// skipped while the walk continues to its own upline. Reports success
// when the direct reward landed, regardless of cascade outcomes.
func (s *ReferralService) RewardReferral(ctx context.Context, inviterID, referredID, signupBonus int64) error {
	inviter, err := s.users.GetByID(ctx, inviterID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return repository.ErrUserNotFound
		}
		return fmt.Errorf("failed to load inviter: %w", err)
	}

	credited, err := s.store.RewardOnce(ctx, inviterID, referredID, repository.DirectLevel, s.directBonus)
	if err != nil {
		return fmt.Errorf("failed to reward inviter: %w", err)
	}
	if !credited {
		return ErrAlreadyRewarded
	}
	metrics.ReferralRewards.WithLabelValues("direct").Inc()
	s.appendLedger(ctx, inviterID, model.LedgerEntry{
		Type:    model.LedgerTypeReferral,
		Amount:  s.directBonus,
		Status:  model.LedgerStatusCompleted,
		Content: "Invited a friend",
	})

	s.cascade(ctx, inviter.Upline, referredID, signupBonus, map[int64]bool{inviterID: true})
	return nil
}

// cascade walks the upline chain distributing percentage bonuses. The
// walk is bounded to maxCascadeDepth levels, never deeper than the
// percent table, and by a visited set, so a
// malformed self-referential chain cannot loop. Cascade failures are
// logged, not surfaced: the direct reward already decided the outcome.
func (s *ReferralService) cascade(ctx context.Context, upline *int64, referredID, signupBonus int64, visited map[int64]bool) {
	depth := maxCascadeDepth
	if len(s.percents) < depth {
		depth = len(s.percents)
	}

	current := upline
	for level := 1; level <= depth && current != nil; level++ {
		uplineID := *current
		if visited[uplineID] {
			log.Warn().Int64("upline_id", uplineID).Msg("Cycle in upline chain, stopping cascade")
			return
		}
		visited[uplineID] = true

		bonus := signupBonus * s.percents[level-1] / 100
		if bonus > 0 {
			credited, err := s.store.RewardOnce(ctx, uplineID, referredID, level, bonus)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					// Dangling upline link terminates the cascade.
					return
				}
				log.Error().Err(err).
					Int64("upline_id", uplineID).
					Int("level", level).
					Msg("Failed to credit cascade reward")
				return
			}
			if credited {
				metrics.ReferralRewards.WithLabelValues(strconv.Itoa(level)).Inc()
				s.appendLedger(ctx, uplineID, model.LedgerEntry{
					Type:    model.LedgerTypeReferral,
					Amount:  bonus,
					Status:  model.LedgerStatusCompleted,
					Content: fmt.Sprintf("Level %d network reward", level),
				})
			}
			// An already-rewarded upline is skipped; the walk goes on.
		}

		next, err := s.store.GetUpline(ctx, uplineID)
		if err != nil {
			if !errors.Is(err, repository.ErrUserNotFound) {
				log.Error().Err(err).Int64("upline_id", uplineID).Msg("Failed to load next upline")
			}
			return
		}
		current = next
	}
}

// CheckMilestone maps a cumulative referral count to the highest
// qualifying tier. reached is false below the lowest threshold.
func (s *ReferralService) CheckMilestone(referralCount int64) (tier model.Milestone, reached bool) {
	for _, m := range s.milestones {
		if referralCount >= m.Count {
			tier, reached = m, true
		}
	}
	return tier, reached
}

// ClaimMilestone grants the one-time bonus for the given tier. The tier
// must be exactly the user's current milestone: a surpassed tier is no
// longer claimable, and each tier claims at most once.
func (s *ReferralService) ClaimMilestone(ctx context.Context, userID, milestone int64) (int64, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}

	tier, reached := s.CheckMilestone(user.ReferralCount)
	if !reached || tier.Count != milestone {
		return 0, ErrMilestoneNotReached
	}

	credited, err := s.store.ClaimMilestone(ctx, userID, tier.Count, tier.Bonus)
	if err != nil {
		return 0, fmt.Errorf("failed to claim milestone: %w", err)
	}
	if !credited {
		return 0, ErrMilestoneClaimed
	}

	metrics.MilestoneClaims.Inc()
	s.appendLedger(ctx, userID, model.LedgerEntry{
		Type:    model.LedgerTypeMilestone,
		Amount:  tier.Bonus,
		Status:  model.LedgerStatusClaimed,
		Content: fmt.Sprintf("%d referrals milestone", tier.Count),
	})
	return tier.Bonus, nil
}

// appendLedger records a credit in the user's activity ledger. The
// ledger is not authoritative: a failed write is logged and the credit
// stands.
func (s *ReferralService) appendLedger(ctx context.Context, userID int64, entry model.LedgerEntry) {
	if err := s.ledger.AppendLedger(ctx, userID, entry); err != nil {
		log.Warn().Err(err).
			Int64("user_id", userID).
			Str("type", entry.Type).
			Msg("Failed to append ledger entry")
	}
}

// ReferralStats summarizes a user's referral standing.
type ReferralStats struct {
	ReferralCount     int64
	LevelCounts       map[int]int64
	ClaimedMilestones []int64
	CurrentTier       model.Milestone
	TierReached       bool
}

// Stats returns the user's invite count, per-level reward membership and
// milestone standing.
func (s *ReferralService) Stats(ctx context.Context, userID int64) (*ReferralStats, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts, err := s.store.LevelCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	claimed, err := s.store.ClaimedMilestones(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier, reached := s.CheckMilestone(user.ReferralCount)
	return &ReferralStats{
		ReferralCount:     user.ReferralCount,
		LevelCounts:       counts,
		ClaimedMilestones: claimed,
		CurrentTier:       tier,
		TierReached:       reached,
	}, nil
}
