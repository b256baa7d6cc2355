package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-mining-app/internal/config"
	"telegram-mining-app/internal/model"
)

// fakeTaskStore is an in-memory taskStore.
type fakeTaskStore struct {
	claimed map[int64]map[string]int64
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{claimed: make(map[int64]map[string]int64)}
}

func (f *fakeTaskStore) ClaimOnce(_ context.Context, userID int64, taskName string, reward int64) (bool, error) {
	byUser, ok := f.claimed[userID]
	if !ok {
		byUser = make(map[string]int64)
		f.claimed[userID] = byUser
	}
	if _, dup := byUser[taskName]; dup {
		return false, nil
	}
	byUser[taskName] = reward
	return true, nil
}

func (f *fakeTaskStore) ClaimedTasks(_ context.Context, userID int64) ([]string, error) {
	var names []string
	for name := range f.claimed[userID] {
		names = append(names, name)
	}
	return names, nil
}

func newTestTaskService(store *fakeTaskStore, ledger *fakeLocal) *TaskService {
	return NewTaskService(store, ledger, config.DefaultTasks())
}

func TestTaskService_Claim(t *testing.T) {
	store := newFakeTaskStore()
	ledger := newFakeLocal()
	svc := newTestTaskService(store, ledger)
	ctx := context.Background()

	reward, err := svc.Claim(ctx, 1, "Telegram")
	require.NoError(t, err)
	assert.Equal(t, int64(500), reward)

	require.Len(t, ledger.ledgers[1], 1)
	entry := ledger.ledgers[1][0]
	assert.Equal(t, model.LedgerTypeTaskReward, entry.Type)
	assert.Equal(t, int64(500), entry.Amount)
	assert.Equal(t, model.LedgerStatusCompleted, entry.Status)

	claimed, err := svc.Claimed(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Telegram"}, claimed)
}

func TestTaskService_ClaimOnlyOnce(t *testing.T) {
	store := newFakeTaskStore()
	ledger := newFakeLocal()
	svc := newTestTaskService(store, ledger)
	ctx := context.Background()

	_, err := svc.Claim(ctx, 1, "Discord")
	require.NoError(t, err)

	_, err = svc.Claim(ctx, 1, "Discord")
	assert.ErrorIs(t, err, ErrTaskClaimed)
	assert.Len(t, ledger.ledgers[1], 1)

	// The same task is independent per user.
	_, err = svc.Claim(ctx, 2, "Discord")
	require.NoError(t, err)
}

func TestTaskService_LedgerFailureKeepsClaim(t *testing.T) {
	ledger := newFakeLocal()
	ledger.appendErr = errors.New("redis gone")
	svc := newTestTaskService(newFakeTaskStore(), ledger)

	reward, err := svc.Claim(context.Background(), 1, "Telegram")
	require.NoError(t, err)
	assert.Equal(t, int64(500), reward)
}

func TestTaskService_UnknownTask(t *testing.T) {
	svc := newTestTaskService(newFakeTaskStore(), newFakeLocal())

	_, err := svc.Claim(context.Background(), 1, "Instagram")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestTaskService_Catalog(t *testing.T) {
	svc := newTestTaskService(newFakeTaskStore(), newFakeLocal())

	catalog := svc.Catalog()
	require.Len(t, catalog, 4)
	for _, task := range catalog {
		assert.Equal(t, int64(500), task.Reward)
	}
}
