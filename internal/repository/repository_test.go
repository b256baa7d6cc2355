// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the database schema
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0,
			mining_end_time BIGINT,
			last_cycle_tick BIGINT NOT NULL DEFAULT 0,
			upline BIGINT,
			referral_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS referral_rewards (
			user_id BIGINT NOT NULL,
			referred_id BIGINT NOT NULL,
			level INT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, referred_id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS referral_bonuses (
			user_id BIGINT NOT NULL,
			milestone BIGINT NOT NULL,
			bonus BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, milestone)
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS claimed_tasks (
			user_id BIGINT NOT NULL,
			task_name VARCHAR(255) NOT NULL,
			reward BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, task_name)
		)
	`)
	return err
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, err := repo.Create(ctx, 12345, "testuser", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.TelegramID)
	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, int64(0), user.Balance)
	assert.Nil(t, user.MiningEndTime)
	assert.Nil(t, user.Upline)
	assert.False(t, user.CreatedAt.IsZero())

	// Create with an upline link
	upline := int64(12345)
	invited, err := repo.Create(ctx, 67890, "invited", &upline)
	require.NoError(t, err)
	require.NotNil(t, invited.Upline)
	assert.Equal(t, int64(12345), *invited.Upline)
}

func TestUserRepository_GetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "testuser", nil)
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.TelegramID)
	assert.Equal(t, "testuser", user.Username)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, 12345, "testuser", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(12345), user.TelegramID)

	// Second call returns the existing row; the upline of an existing
	// user never changes.
	upline := int64(555)
	user, created, err = repo.GetOrCreate(ctx, 12345, "testuser", &upline)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, user.Upline)
}

func TestUserRepository_IncrementBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "testuser", nil)
	require.NoError(t, err)

	user, err := repo.IncrementBalance(ctx, 12345, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), user.Balance)

	user, err = repo.IncrementBalance(ctx, 12345, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(750), user.Balance)

	_, err = repo.IncrementBalance(ctx, 99999, 100)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_Sessions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "miner", nil)
	require.NoError(t, err)

	nowMs := time.Now().UnixMilli()
	endMs := nowMs + int64(24*time.Hour/time.Millisecond)

	err = repo.StartSession(ctx, 12345, endMs, nowMs)
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	require.NotNil(t, user.MiningEndTime)
	assert.Equal(t, endMs, *user.MiningEndTime)
	assert.Equal(t, nowMs, user.LastCycleTick)

	// An active session shows up in the boot recovery scan.
	active, err := repo.GetActiveSessions(ctx, nowMs)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(12345), active[0].TelegramID)

	err = repo.ClearSession(ctx, 12345)
	require.NoError(t, err)

	user, err = repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Nil(t, user.MiningEndTime)

	active, err = repo.GetActiveSessions(ctx, nowMs)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = repo.StartSession(ctx, 99999, endMs, nowMs)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_CreditCycles(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "miner", nil)
	require.NoError(t, err)

	nowMs := time.Now().UnixMilli()
	err = repo.StartSession(ctx, 12345, nowMs+1000000, nowMs)
	require.NoError(t, err)

	// Credit moves the tick forward.
	err = repo.CreditCycles(ctx, 12345, 3, nowMs+90000)
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.Balance)
	assert.Equal(t, nowMs+90000, user.LastCycleTick)

	// A stale tick is a silent no-op: the balance must not change.
	err = repo.CreditCycles(ctx, 12345, 5, nowMs+60000)
	require.NoError(t, err)

	user, err = repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.Balance)
	assert.Equal(t, nowMs+90000, user.LastCycleTick)

	err = repo.CreditCycles(ctx, 99999, 1, nowMs)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetTopUsers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, _ = repo.Create(ctx, 1, "user1", nil)
	_, _ = repo.Create(ctx, 2, "user2", nil)
	_, _ = repo.Create(ctx, 3, "user3", nil)

	_, _ = repo.IncrementBalance(ctx, 1, 3000)
	_, _ = repo.IncrementBalance(ctx, 2, 1000)
	_, _ = repo.IncrementBalance(ctx, 3, 5000)

	users, err := repo.GetTopUsers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, users, 3)

	// Descending by balance
	assert.Equal(t, int64(3), users[0].TelegramID)
	assert.Equal(t, int64(1), users[1].TelegramID)
	assert.Equal(t, int64(2), users[2].TelegramID)
}

func TestUserRepository_GetRankAndTotals(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, _ = repo.Create(ctx, 1, "user1", nil)
	_, _ = repo.Create(ctx, 2, "user2", nil)
	_, _ = repo.Create(ctx, 3, "user3", nil)

	_, _ = repo.IncrementBalance(ctx, 1, 3000)
	_, _ = repo.IncrementBalance(ctx, 2, 1000)
	_, _ = repo.IncrementBalance(ctx, 3, 5000)

	rank, err := repo.GetRank(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	rank, err = repo.GetRank(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank)

	totalMined, totalUsers, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), totalMined)
	assert.Equal(t, int64(3), totalUsers)
}

func TestUserRepository_UpdateUsername(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "oldname", nil)
	require.NoError(t, err)

	err = repo.UpdateUsername(ctx, 12345, "newname")
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, "newname", user.Username)

	err = repo.UpdateUsername(ctx, 99999, "name")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_Exists(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	exists, err := repo.Exists(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Create(ctx, 12345, "testuser", nil)
	require.NoError(t, err)

	exists, err = repo.Exists(ctx, 12345)
	require.NoError(t, err)
	assert.True(t, exists)
}

// ============================================================================
// ReferralRepository Tests
// ============================================================================

func TestReferralRepository_RewardOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	refRepo := NewReferralRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 1, "inviter", nil)
	require.NoError(t, err)

	// First direct reward credits and bumps the invite count.
	credited, err := refRepo.RewardOnce(ctx, 1, 100, DirectLevel, 520)
	require.NoError(t, err)
	assert.True(t, credited)

	user, err := userRepo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(520), user.Balance)
	assert.Equal(t, int64(1), user.ReferralCount)

	// Replaying the same signup credits nothing.
	credited, err = refRepo.RewardOnce(ctx, 1, 100, DirectLevel, 520)
	require.NoError(t, err)
	assert.False(t, credited)

	user, err = userRepo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(520), user.Balance)
	assert.Equal(t, int64(1), user.ReferralCount)

	// A different referred user is a new reward.
	credited, err = refRepo.RewardOnce(ctx, 1, 101, DirectLevel, 520)
	require.NoError(t, err)
	assert.True(t, credited)

	user, err = userRepo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1040), user.Balance)
	assert.Equal(t, int64(2), user.ReferralCount)
}

func TestReferralRepository_RewardOnce_UplineLevel(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	refRepo := NewReferralRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 1, "upline", nil)
	require.NoError(t, err)

	// A cascade payout credits the balance but not the invite count.
	credited, err := refRepo.RewardOnce(ctx, 1, 100, 1, 500)
	require.NoError(t, err)
	assert.True(t, credited)

	user, err := userRepo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), user.Balance)
	assert.Equal(t, int64(0), user.ReferralCount)
}

func TestReferralRepository_RewardOnce_MissingUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	refRepo := NewReferralRepository(pool)
	ctx := context.Background()

	_, err := refRepo.RewardOnce(ctx, 99999, 100, DirectLevel, 520)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReferralRepository_GetUpline(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	refRepo := NewReferralRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 1, "root", nil)
	require.NoError(t, err)
	root := int64(1)
	_, err = userRepo.Create(ctx, 2, "child", &root)
	require.NoError(t, err)

	upline, err := refRepo.GetUpline(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, upline)
	assert.Equal(t, int64(1), *upline)

	upline, err = refRepo.GetUpline(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, upline)

	_, err = refRepo.GetUpline(ctx, 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReferralRepository_ClaimMilestone(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	refRepo := NewReferralRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 1, "inviter", nil)
	require.NoError(t, err)

	credited, err := refRepo.ClaimMilestone(ctx, 1, 5, 1000)
	require.NoError(t, err)
	assert.True(t, credited)

	user, err := userRepo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), user.Balance)

	// Same milestone claims only once.
	credited, err = refRepo.ClaimMilestone(ctx, 1, 5, 1000)
	require.NoError(t, err)
	assert.False(t, credited)

	user, err = userRepo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), user.Balance)

	claimed, err := refRepo.ClaimedMilestones(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, claimed)
}

func TestReferralRepository_LevelCounts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	refRepo := NewReferralRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 1, "inviter", nil)
	require.NoError(t, err)

	_, _ = refRepo.RewardOnce(ctx, 1, 100, DirectLevel, 520)
	_, _ = refRepo.RewardOnce(ctx, 1, 101, DirectLevel, 520)
	_, _ = refRepo.RewardOnce(ctx, 1, 102, 2, 300)

	counts, err := refRepo.LevelCounts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[DirectLevel])
	assert.Equal(t, int64(1), counts[2])
}

// ============================================================================
// TaskRepository Tests
// ============================================================================

func TestTaskRepository_ClaimOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	taskRepo := NewTaskRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 12345, "testuser", nil)
	require.NoError(t, err)

	credited, err := taskRepo.ClaimOnce(ctx, 12345, "Telegram", 500)
	require.NoError(t, err)
	assert.True(t, credited)

	user, err := userRepo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(500), user.Balance)

	// Replay credits nothing.
	credited, err = taskRepo.ClaimOnce(ctx, 12345, "Telegram", 500)
	require.NoError(t, err)
	assert.False(t, credited)

	user, err = userRepo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(500), user.Balance)

	_, err = taskRepo.ClaimOnce(ctx, 99999, "Telegram", 500)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTaskRepository_ClaimedTasks(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	taskRepo := NewTaskRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 12345, "testuser", nil)
	require.NoError(t, err)

	claimed, err := taskRepo.ClaimedTasks(ctx, 12345)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	_, _ = taskRepo.ClaimOnce(ctx, 12345, "Telegram", 500)
	_, _ = taskRepo.ClaimOnce(ctx, 12345, "Discord", 500)

	claimed, err = taskRepo.ClaimedTasks(ctx, 12345)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Telegram", "Discord"}, claimed)
}
