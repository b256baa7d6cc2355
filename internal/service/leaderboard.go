package service

import (
	"context"
	"fmt"

	"telegram-mining-app/internal/model"
	"telegram-mining-app/internal/repository"
)

// LeaderboardService ranks users by balance and aggregates network-wide
// mining totals.
type LeaderboardService struct {
	userRepo *repository.UserRepository
	nonToTon float64
}

// Leaderboard is the ranked user table plus the requesting user's own
// standing and the network totals.
type Leaderboard struct {
	Rows       []model.LeaderboardRow `json:"leaderboard"`
	UserRank   int64                  `json:"userRank"`
	Invites    int64                  `json:"totalInvites"`
	TotalMined int64                  `json:"totalMined"`
	TotalUsers int64                  `json:"totalUsers"`
	TonValue   float64                `json:"tonAccumulated"`
}

// NewLeaderboardService creates a new LeaderboardService instance.
func NewLeaderboardService(userRepo *repository.UserRepository, nonToTon float64) *LeaderboardService {
	return &LeaderboardService{userRepo: userRepo, nonToTon: nonToTon}
}

// Get builds the leaderboard for the requesting user: the top rows by
// balance plus the user's own rank, invite count and TON display value.
// A missing requesting user yields zero personal stats, not an error.
func (s *LeaderboardService) Get(ctx context.Context, userID int64, limit int) (*Leaderboard, error) {
	top, err := s.userRepo.GetTopUsers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}

	rows := make([]model.LeaderboardRow, 0, len(top))
	for i, u := range top {
		rows = append(rows, model.LeaderboardRow{
			Rank:     i + 1,
			UserID:   u.TelegramID,
			Username: u.Username,
			Balance:  u.Balance,
			Invites:  u.ReferralCount,
		})
	}

	totalMined, totalUsers, err := s.userRepo.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}

	board := &Leaderboard{
		Rows:       rows,
		TotalMined: totalMined,
		TotalUsers: totalUsers,
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err == nil {
		rank, err := s.userRepo.GetRank(ctx, userID)
		if err != nil {
			return nil, err
		}
		board.UserRank = rank
		board.Invites = user.ReferralCount
		board.TonValue = model.NonToTon(user.Balance, s.nonToTon)
	}

	return board, nil
}

// Top returns the top N users by balance.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]*model.User, error) {
	return s.userRepo.GetTopUsers(ctx, limit)
}
