package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-mining-app/internal/mining"
	"telegram-mining-app/internal/repository"
)

// MinerService ties the mining engine to the user store: it decides
// between starting a fresh session and resuming a persisted one, and
// reconciles sessions left running by a previous process on boot.
type MinerService struct {
	userRepo *repository.UserRepository
	manager  *mining.Manager
}

// MiningStatus is a snapshot of a user's session for display.
type MiningStatus struct {
	Active       bool    `json:"active"`
	Remaining    int64   `json:"remaining"`
	Progress     float64 `json:"progress"`
	CyclePercent int     `json:"cyclePercent"`
}

// NewMinerService creates a new MinerService instance.
func NewMinerService(userRepo *repository.UserRepository, manager *mining.Manager) *MinerService {
	return &MinerService{userRepo: userRepo, manager: manager}
}

// Start begins or resumes mining for the user. A user whose persisted
// session is still live (left over from a previous process) is resumed
// with its completed cycles credited; otherwise a fresh session starts.
// Requires an existing user record. Starting while already mining
// returns the running session and mining.ErrAlreadyMining.
func (s *MinerService) Start(ctx context.Context, userID int64) (*mining.Session, int64, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	nowMs := time.Now().UnixMilli()
	if user.Mining(nowMs) {
		session, credited, err := s.manager.Resume(ctx, userID, *user.MiningEndTime, user.LastCycleTick)
		if errors.Is(err, mining.ErrSessionExpired) {
			// Expired between the read and the resume; fall through to a
			// fresh start.
			session, err := s.manager.Start(ctx, userID)
			return session, 0, err
		}
		return session, credited, err
	}

	session, err := s.manager.Start(ctx, userID)
	return session, 0, err
}

// Status reports the user's current session state.
func (s *MinerService) Status(userID int64) MiningStatus {
	session, ok := s.manager.Session(userID)
	if !ok {
		return MiningStatus{}
	}
	return MiningStatus{
		Active:       true,
		Remaining:    session.Remaining(),
		Progress:     session.Progress(),
		CyclePercent: session.CyclePercent(),
	}
}

// ResumeAll restarts every persisted session that is still live. Run
// once on boot; per-user failures are logged and skipped so one bad
// record cannot block the rest.
func (s *MinerService) ResumeAll(ctx context.Context) (int, error) {
	nowMs := time.Now().UnixMilli()
	users, err := s.userRepo.GetActiveSessions(ctx, nowMs)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, user := range users {
		if user.MiningEndTime == nil {
			continue
		}
		if _, _, err := s.manager.Resume(ctx, user.TelegramID, *user.MiningEndTime, user.LastCycleTick); err != nil {
			log.Error().Err(err).Int64("user_id", user.TelegramID).Msg("Failed to resume mining session")
			continue
		}
		resumed++
	}
	return resumed, nil
}

// StopAll tears down all running sessions without clearing their
// persisted markers.
func (s *MinerService) StopAll() {
	s.manager.StopAll()
}
