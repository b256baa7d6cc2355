package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-mining-app/internal/pkg/lock"
	"telegram-mining-app/internal/service"
)

// TaskHandler handles the reward-task catalog and claim commands.
type TaskHandler struct {
	taskService *service.TaskService
	userLock    *lock.UserLock
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService *service.TaskService, userLock *lock.UserLock) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		userLock:    userLock,
	}
}

// HandleTasks handles the /tasks command: lists the catalog with the
// user's completion marks.
func (h *TaskHandler) HandleTasks(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	claimed, err := h.taskService.Claimed(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Could not load your tasks, please try again later.")
	}
	done := make(map[string]bool, len(claimed))
	for _, name := range claimed {
		done[name] = true
	}

	var b strings.Builder
	b.WriteString("📋 Tasks:\n\n")
	for _, task := range h.taskService.Catalog() {
		mark := "⬜"
		if done[task.Name] {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s — %d NON\n", mark, task.Name, task.Reward)
	}
	b.WriteString("\nClaim with /claim <task name>.")

	return c.Reply(b.String())
}

// HandleClaim handles the /claim command: grants a task reward once.
func (h *TaskHandler) HandleClaim(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	taskName := strings.TrimSpace(c.Message().Payload)
	if taskName == "" {
		return c.Reply("Usage: /claim <task name>\nSee /tasks for the list.")
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	reward, err := h.taskService.Claim(ctx, sender.ID, taskName)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTask) {
			return c.Reply("⚠️ Unknown task. See /tasks for the list.")
		}
		if errors.Is(err, service.ErrTaskClaimed) {
			return c.Reply("⚠️ You already claimed this task.")
		}
		return c.Reply("❌ Could not claim the task, please try again later.")
	}

	return c.Reply(fmt.Sprintf("✅ Task complete: +%d NON!", reward))
}
