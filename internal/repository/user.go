// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-mining-app/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = `telegram_id, username, balance, mining_end_time, last_cycle_tick, upline, referral_count, created_at, updated_at`

// UserRepository handles user data persistence. The balance column is
// only ever mutated through additive increments, so concurrent engines
// (mining credit, bonus, referral, task) never read-then-overwrite it.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.TelegramID,
		&user.Username,
		&user.Balance,
		&user.MiningEndTime,
		&user.LastCycleTick,
		&user.Upline,
		&user.ReferralCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user with a zero balance. The upline reference is
// fixed at signup and never rewritten afterwards.
func (r *UserRepository) Create(ctx context.Context, telegramID int64, username string, upline *int64) (*model.User, error) {
	const query = `
		INSERT INTO users (telegram_id, username, balance, last_cycle_tick, upline, referral_count, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, 0, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID, username, upline))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, telegramID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by Telegram ID, creating a zero-balance
// record if it doesn't exist. The upline is only applied on creation.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username string, upline *int64) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, telegramID, username, upline)
	if err != nil {
		// Handle race condition: another request might have created the user
		user, err = r.GetByID(ctx, telegramID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// IncrementBalance atomically adds amount to a user's balance. Amounts in
// this system are always positive; nothing here ever decrements.
func (r *UserRepository) IncrementBalance(ctx context.Context, telegramID int64, amount int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE telegram_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to increment balance: %w", err)
	}
	return user, nil
}

// StartSession stamps a new mining session on the user: session end and
// cycle tick, both epoch-milliseconds, persisted together.
func (r *UserRepository) StartSession(ctx context.Context, telegramID, endMs, tickMs int64) error {
	const query = `
		UPDATE users
		SET mining_end_time = $2, last_cycle_tick = $3, updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.pool.Exec(ctx, query, telegramID, endMs, tickMs)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreditCycles adds the cycle reward to the balance and restamps the
// cycle tick in one statement. The tick guard keeps last_cycle_tick
// moving forward only, so a delayed or replayed write can never grant
// already-credited elapsed time a second time.
func (r *UserRepository) CreditCycles(ctx context.Context, telegramID, amount, tickMs int64) error {
	const query = `
		UPDATE users
		SET balance = balance + $2, last_cycle_tick = $3, updated_at = NOW()
		WHERE telegram_id = $1 AND last_cycle_tick <= $3
	`

	result, err := r.pool.Exec(ctx, query, telegramID, amount, tickMs)
	if err != nil {
		return fmt.Errorf("failed to credit cycles: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the user is gone or the tick guard rejected a stale
		// write. The latter is a legitimate no-op, not a failure.
		exists, err := r.Exists(ctx, telegramID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
	}
	return nil
}

// ClearSession removes the mining session end marker.
func (r *UserRepository) ClearSession(ctx context.Context, telegramID int64) error {
	const query = `
		UPDATE users
		SET mining_end_time = NULL, updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.pool.Exec(ctx, query, telegramID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetActiveSessions retrieves all users whose persisted session end is
// still in the future. Used on boot to resume sessions that were running
// when the process last stopped.
func (r *UserRepository) GetActiveSessions(ctx context.Context, nowMs int64) ([]*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE mining_end_time IS NOT NULL AND mining_end_time > $1`

	rows, err := r.pool.Query(ctx, query, nowMs)
	if err != nil {
		return nil, fmt.Errorf("failed to get active sessions: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// GetTopUsers retrieves the top N users by balance.
func (r *UserRepository) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY balance DESC, telegram_id LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// GetRank returns a user's 1-based position when all users are ordered by
// balance descending.
func (r *UserRepository) GetRank(ctx context.Context, telegramID int64) (int64, error) {
	const query = `
		SELECT COUNT(*) + 1
		FROM users
		WHERE balance > (SELECT balance FROM users WHERE telegram_id = $1)
	`

	var rank int64
	err := r.pool.QueryRow(ctx, query, telegramID).Scan(&rank)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}
	return rank, nil
}

// Totals returns the network-wide totals: sum of all balances (total
// mined) and the user count.
func (r *UserRepository) Totals(ctx context.Context) (totalMined int64, totalUsers int64, err error) {
	const query = `SELECT COALESCE(SUM(balance), 0), COUNT(*) FROM users`

	if err := r.pool.QueryRow(ctx, query).Scan(&totalMined, &totalUsers); err != nil {
		return 0, 0, fmt.Errorf("failed to get totals: %w", err)
	}
	return totalMined, totalUsers, nil
}

// UpdateUsername updates a user's username.
func (r *UserRepository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	const query = `
		UPDATE users
		SET username = $2, updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.pool.Exec(ctx, query, telegramID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Exists checks if a user with the given Telegram ID exists.
func (r *UserRepository) Exists(ctx context.Context, telegramID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE telegram_id = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, telegramID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
