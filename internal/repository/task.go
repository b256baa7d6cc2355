package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskRepository handles one-off social task claims. Claims live in the
// authoritative store rather than on the client, so a user switching
// devices keeps their claim history.
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new TaskRepository instance.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// ClaimOnce credits the task reward at most once per (user, task) pair.
// Returns false without touching the balance when the task was already
// claimed.
func (r *TaskRepository) ClaimOnce(ctx context.Context, userID int64, taskName string, reward int64) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to begin task claim: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const guard = `
		INSERT INTO claimed_tasks (user_id, task_name, reward, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, task_name) DO NOTHING
	`
	result, err := tx.Exec(ctx, guard, userID, taskName, reward)
	if err != nil {
		return false, fmt.Errorf("failed to record task claim: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	const credit = `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE telegram_id = $1
	`
	result, err = tx.Exec(ctx, credit, userID, reward)
	if err != nil {
		return false, fmt.Errorf("failed to credit task reward: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit task claim: %w", err)
	}
	return true, nil
}

// ClaimedTasks returns the task names the user has already redeemed.
func (r *TaskRepository) ClaimedTasks(ctx context.Context, userID int64) ([]string, error) {
	const query = `
		SELECT task_name
		FROM claimed_tasks
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get claimed tasks: %w", err)
	}
	defer rows.Close()

	var tasks []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan task name: %w", err)
		}
		tasks = append(tasks, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed tasks: %w", err)
	}

	return tasks, nil
}
