// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"

	"telegram-mining-app/internal/model"
	"telegram-mining-app/internal/repository"
)

// AccountService handles user account lookup and creation.
type AccountService struct {
	userRepo *repository.UserRepository
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(userRepo *repository.UserRepository) *AccountService {
	return &AccountService{userRepo: userRepo}
}

// EnsureUser ensures a user exists, creating a zero-balance record if
// necessary. The upline reference only applies on creation; an existing
// user's upline is never rewritten. Returns the user and whether it was
// newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string, upline *int64) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, telegramID, username, upline)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	// Update username if it changed
	if !created && user.Username != username && username != "" {
		if err := s.userRepo.UpdateUsername(ctx, telegramID, username); err == nil {
			user.Username = username
		}
	}

	return user, created, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, telegramID)
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, telegramID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}
