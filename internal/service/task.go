package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-mining-app/internal/config"
	"telegram-mining-app/internal/metrics"
	"telegram-mining-app/internal/model"
)

// Task claim errors.
var (
	ErrTaskClaimed = errors.New("task already claimed")
	ErrUnknownTask = errors.New("unknown task")
)

// taskStore is the persistence surface of the claim registry.
type taskStore interface {
	ClaimOnce(ctx context.Context, userID int64, taskName string, reward int64) (bool, error)
	ClaimedTasks(ctx context.Context, userID int64) ([]string, error)
}

// taskLedger appends audit entries for claims.
type taskLedger interface {
	AppendLedger(ctx context.Context, userID int64, entry model.LedgerEntry) error
}

// TaskService is the one-off social task claim registry.
type TaskService struct {
	store   taskStore
	ledger  taskLedger
	catalog []config.TaskConfig
}

// NewTaskService creates a new TaskService instance.
func NewTaskService(store taskStore, ledger taskLedger, catalog []config.TaskConfig) *TaskService {
	return &TaskService{store: store, ledger: ledger, catalog: catalog}
}

// Catalog returns the claimable task list.
func (s *TaskService) Catalog() []config.TaskConfig {
	return s.catalog
}

// lookup finds a task by name in the catalog.
func (s *TaskService) lookup(taskName string) (config.TaskConfig, bool) {
	for _, t := range s.catalog {
		if t.Name == taskName {
			return t, true
		}
	}
	return config.TaskConfig{}, false
}

// Claim redeems a task reward at most once per user. The reward comes
// from the catalog, never from the caller, so a claim request cannot
// name its own amount.
func (s *TaskService) Claim(ctx context.Context, userID int64, taskName string) (int64, error) {
	task, ok := s.lookup(taskName)
	if !ok {
		return 0, ErrUnknownTask
	}

	credited, err := s.store.ClaimOnce(ctx, userID, task.Name, task.Reward)
	if err != nil {
		return 0, fmt.Errorf("failed to claim task: %w", err)
	}
	if !credited {
		return 0, ErrTaskClaimed
	}

	if err := s.ledger.AppendLedger(ctx, userID, model.LedgerEntry{
		Type:    model.LedgerTypeTaskReward,
		Amount:  task.Reward,
		Status:  model.LedgerStatusCompleted,
		Content: fmt.Sprintf("Completed %s", task.Name),
	}); err != nil {
		// The ledger is not authoritative; the credit stands.
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to append ledger entry")
	}

	metrics.TaskClaims.Inc()
	return task.Reward, nil
}

// Claimed returns the task names the user has already redeemed.
func (s *TaskService) Claimed(ctx context.Context, userID int64) ([]string, error) {
	return s.store.ClaimedTasks(ctx, userID)
}
