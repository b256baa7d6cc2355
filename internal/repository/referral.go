package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DirectLevel marks a direct (level-0) referral reward in the
// referral_rewards membership table; cascade levels are 1..5.
const DirectLevel = 0

// ReferralRepository handles referral reward persistence. The
// (user_id, referred_id) primary key on referral_rewards is the dedup
// guard: a reward lands exactly once per pair, enforced by the store
// rather than by a read-then-write in the caller.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// RewardOnce credits amount to userID for referredID at the given
// cascade level, at most once per (userID, referredID) pair. Returns
// false without touching the balance when the pair was already rewarded.
// Direct rewards also bump the user's referral count. Guard insert,
// balance increment and count bump commit atomically.
func (r *ReferralRepository) RewardOnce(ctx context.Context, userID, referredID int64, level int, amount int64) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to begin referral reward: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const guard = `
		INSERT INTO referral_rewards (user_id, referred_id, level, amount, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, referred_id) DO NOTHING
	`
	result, err := tx.Exec(ctx, guard, userID, referredID, level, amount)
	if err != nil {
		return false, fmt.Errorf("failed to record referral reward: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	if level == DirectLevel {
		const credit = `
			UPDATE users
			SET balance = balance + $2, referral_count = referral_count + 1, updated_at = NOW()
			WHERE telegram_id = $1
		`
		result, err = tx.Exec(ctx, credit, userID, amount)
	} else {
		const credit = `
			UPDATE users
			SET balance = balance + $2, updated_at = NOW()
			WHERE telegram_id = $1
		`
		result, err = tx.Exec(ctx, credit, userID, amount)
	}
	if err != nil {
		return false, fmt.Errorf("failed to credit referral reward: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit referral reward: %w", err)
	}
	return true, nil
}

// GetUpline returns the inviter of the given user, or nil when the user
// has no upline. Returns ErrUserNotFound for a missing user.
func (r *ReferralRepository) GetUpline(ctx context.Context, userID int64) (*int64, error) {
	const query = `SELECT upline FROM users WHERE telegram_id = $1`

	var upline *int64
	err := r.pool.QueryRow(ctx, query, userID).Scan(&upline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get upline: %w", err)
	}
	return upline, nil
}

// ClaimMilestone credits the milestone bonus at most once per
// (user, milestone) pair. Returns false without touching the balance
// when the tier was already claimed.
func (r *ReferralRepository) ClaimMilestone(ctx context.Context, userID, milestone, bonus int64) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to begin milestone claim: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const guard = `
		INSERT INTO referral_bonuses (user_id, milestone, bonus, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, milestone) DO NOTHING
	`
	result, err := tx.Exec(ctx, guard, userID, milestone, bonus)
	if err != nil {
		return false, fmt.Errorf("failed to record milestone claim: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	const credit = `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE telegram_id = $1
	`
	result, err = tx.Exec(ctx, credit, userID, bonus)
	if err != nil {
		return false, fmt.Errorf("failed to credit milestone bonus: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit milestone claim: %w", err)
	}
	return true, nil
}

// LevelCounts returns how many referred users this user has been
// rewarded for at each cascade level (0 = direct).
func (r *ReferralRepository) LevelCounts(ctx context.Context, userID int64) (map[int]int64, error) {
	const query = `
		SELECT level, COUNT(*)
		FROM referral_rewards
		WHERE user_id = $1
		GROUP BY level
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get level counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var level int
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		counts[level] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating level counts: %w", err)
	}

	return counts, nil
}

// ClaimedMilestones returns the milestone tiers the user has already
// claimed, in ascending order.
func (r *ReferralRepository) ClaimedMilestones(ctx context.Context, userID int64) ([]int64, error) {
	const query = `
		SELECT milestone
		FROM referral_bonuses
		WHERE user_id = $1
		ORDER BY milestone
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get claimed milestones: %w", err)
	}
	defer rows.Close()

	var milestones []int64
	for rows.Next() {
		var m int64
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating milestones: %w", err)
	}

	return milestones, nil
}
