// Package model defines the data models for the mining rewards app.
package model

import "time"

// User represents a miner account. Balance is the authoritative NON
// balance and is only ever mutated through additive increments.
// MiningEndTime and LastCycleTick are epoch-milliseconds; MiningEndTime
// is nil while no mining session is active.
type User struct {
	TelegramID    int64     `db:"telegram_id"`
	Username      string    `db:"username"`
	Balance       int64     `db:"balance"`
	MiningEndTime *int64    `db:"mining_end_time"`
	LastCycleTick int64     `db:"last_cycle_tick"`
	Upline        *int64    `db:"upline"`
	ReferralCount int64     `db:"referral_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Mining reports whether the user has a session that has not yet expired
// at the given epoch-millisecond instant.
func (u *User) Mining(nowMs int64) bool {
	return u.MiningEndTime != nil && *u.MiningEndTime > nowMs
}

// LedgerEntry is one line of a user's recent-activity ledger. The ledger
// is an audit trail capped at the newest 50 entries, not an authoritative
// record; the balance column on the user is the source of truth.
type LedgerEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// Ledger entry types.
const (
	LedgerTypeDailyBonus = "Daily Bonus"
	LedgerTypeTaskReward = "Task Reward"
	LedgerTypeMilestone  = "Milestone Bonus"
	LedgerTypeReferral   = "Referral Reward"
)

// Ledger entry statuses.
const (
	LedgerStatusClaimed   = "Claimed"
	LedgerStatusCompleted = "Completed"
)

// Milestone is a cumulative-referral-count threshold with its one-time bonus.
type Milestone struct {
	Count int64 `json:"count"`
	Bonus int64 `json:"bonus"`
}

// LeaderboardRow is one ranked row of the global leaderboard.
type LeaderboardRow struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"id"`
	Username string `json:"name"`
	Balance  int64  `json:"value"`
	Invites  int64  `json:"invites"`
}

// NonToTon converts a NON balance to its display value in TON.
// Display-only; nothing in this system moves real TON.
func NonToTon(balance int64, rate float64) float64 {
	return float64(balance) * rate
}
