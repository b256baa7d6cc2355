package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-mining-app/internal/service"
)

const leaderboardSize = 10

// LeaderboardHandler handles the leaderboard command.
type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(leaderboardService *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: leaderboardService}
}

// HandleTop handles the /top command: the top miners by balance plus the
// caller's own rank and the network totals.
func (h *LeaderboardHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	board, err := h.leaderboardService.Get(ctx, sender.ID, leaderboardSize)
	if err != nil {
		return c.Reply("❌ Could not load the leaderboard, please try again later.")
	}

	var b strings.Builder
	b.WriteString("🏆 Top miners:\n\n")
	for _, row := range board.Rows {
		name := row.Username
		if name == "" {
			name = fmt.Sprintf("user%d", row.UserID)
		}
		fmt.Fprintf(&b, "%d. %s — %d NON\n", row.Rank, name, row.Balance)
	}
	if len(board.Rows) == 0 {
		b.WriteString("Nobody has mined yet.\n")
	}

	if board.UserRank > 0 {
		fmt.Fprintf(&b, "\nYour rank: #%d\n", board.UserRank)
	}
	fmt.Fprintf(&b, "⛏ Total mined: %d NON by %d miners", board.TotalMined, board.TotalUsers)

	return c.Reply(b.String())
}
