package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"deadline-bot/internal/repository"
	"deadline-bot/internal/service"
)

const (
	cbTaskPrefix       = "task:"
	cbEditPrefix       = "edit:"
	cbFieldPrefix      = "field:"
	cbFinishEditPrefix = "finish:"
	cbDeletePrefix     = "delete:"
	cbConfirmDelete    = "confirm:delete:"
	cbConfirmDay       = "confirm:day:"
	cbDayClearPrefix   = "dayclear:"
	cbSearch           = "search"
	cbCancel           = "cancel"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}

	chatID := cb.Message.Chat.ID
	userID := cb.From.ID
	data := cb.Data
	b.log.Debug().Int64("user", userID).Str("data", data).Msg("callback")

	switch {
	case strings.HasPrefix(data, cbTaskPrefix):
		b.ack(ctx, cb, "")
		return b.sendTaskDetails(ctx, chatID, userID, strings.TrimPrefix(data, cbTaskPrefix))

	case strings.HasPrefix(data, cbEditPrefix):
		b.ack(ctx, cb, "")
		taskID := strings.TrimPrefix(data, cbEditPrefix)
		if _, err := b.tasks.GetTask(ctx, userID, taskID); err != nil {
			return b.taskLookupFailed(ctx, chatID, err)
		}
		b.clearConversation(userID)
		return b.sendWithReplyMarkup(ctx, chatID, "What do you want to edit?", chooseFieldKeyboard(taskID))

	case strings.HasPrefix(data, cbFieldPrefix):
		b.ack(ctx, cb, "")
		field, taskID, ok := strings.Cut(strings.TrimPrefix(data, cbFieldPrefix), ":")
		if !ok {
			return nil
		}
		return b.askEditValue(ctx, chatID, userID, taskID, field)

	case strings.HasPrefix(data, cbFinishEditPrefix):
		b.ack(ctx, cb, "")
		b.clearConversation(userID)
		task, err := b.tasks.GetTask(ctx, userID, strings.TrimPrefix(data, cbFinishEditPrefix))
		if err != nil {
			return b.taskLookupFailed(ctx, chatID, err)
		}
		return b.sendText(ctx, chatID, "Task updated successfully!\n"+taskSummary(*task, b.loc))

	case strings.HasPrefix(data, cbDeletePrefix):
		b.ack(ctx, cb, "")
		taskID := strings.TrimPrefix(data, cbDeletePrefix)
		task, err := b.tasks.GetTask(ctx, userID, taskID)
		if err != nil {
			return b.taskLookupFailed(ctx, chatID, err)
		}
		return b.sendWithReplyMarkup(ctx, chatID,
			fmt.Sprintf("Mark <b>%s</b> as done? It will be deleted together with its reminders.", html.EscapeString(task.Title)),
			confirmKeyboard(cbConfirmDelete+taskID))

	case strings.HasPrefix(data, cbConfirmDelete):
		taskID := strings.TrimPrefix(data, cbConfirmDelete)
		task, err := b.tasks.GetTask(ctx, userID, taskID)
		if err != nil {
			b.ack(ctx, cb, "Task not found.")
			return nil
		}
		if err := b.tasks.DeleteTask(ctx, userID, taskID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			b.ack(ctx, cb, "")
			_ = b.sendText(ctx, chatID, "Could not delete the task, please try again later.")
			return fmt.Errorf("delete task: %w", err)
		}
		b.ack(ctx, cb, "")
		b.log.Info().Int64("user", userID).Str("task", taskID).Msg("task completed")
		if err := b.sendText(ctx, chatID, fmt.Sprintf("Task '%s' completed.", html.EscapeString(task.Title))); err != nil {
			return err
		}
		return b.sendTaskList(ctx, chatID, userID)

	case strings.HasPrefix(data, cbDayClearPrefix):
		b.ack(ctx, cb, "")
		date := strings.TrimPrefix(data, cbDayClearPrefix)
		return b.sendWithReplyMarkup(ctx, chatID,
			fmt.Sprintf("Delete all tasks due on %s?", html.EscapeString(date)),
			confirmKeyboard(cbConfirmDay+date))

	case strings.HasPrefix(data, cbConfirmDay):
		b.ack(ctx, cb, "")
		date := strings.TrimPrefix(data, cbConfirmDay)
		day, err := service.ParseDate(date, b.loc)
		if err != nil {
			return nil
		}
		n, err := b.tasks.DeleteDay(ctx, userID, day)
		if err != nil {
			_ = b.sendText(ctx, chatID, "Could not delete the tasks, please try again later.")
			return fmt.Errorf("delete day: %w", err)
		}
		b.log.Info().Int64("user", userID).Str("day", date).Int64("deleted", n).Msg("day cleared")
		return b.sendText(ctx, chatID, fmt.Sprintf("All tasks for %s deleted successfully (%d).", date, n))

	case data == cbSearch:
		b.ack(ctx, cb, "")
		b.setConversation(userID, &conversationState{stage: stageDayQuery})
		return b.sendWithReplyMarkup(ctx, chatID, "Please enter the date in <b>YYYY-MM-DD</b> format:", cancelKeyboard())

	case data == cbCancel:
		b.ack(ctx, cb, "Cancelled")
		return nil

	default:
		b.ack(ctx, cb, "")
		return nil
	}
}

func (b *Bot) sendTaskDetails(ctx context.Context, chatID, userID int64, taskID string) error {
	task, err := b.tasks.GetTask(ctx, userID, taskID)
	if err != nil {
		return b.taskLookupFailed(ctx, chatID, err)
	}
	reminders, err := b.tasks.Reminders(ctx, userID, taskID)
	if err != nil {
		return b.taskLookupFailed(ctx, chatID, err)
	}
	text := service.FormatTaskDetails(*task, reminders, b.now().In(b.loc))
	return b.sendWithReplyMarkup(ctx, chatID, text, taskActionsKeyboard(taskID))
}

func (b *Bot) askEditValue(ctx context.Context, chatID, userID int64, taskID, field string) error {
	if _, err := b.tasks.GetTask(ctx, userID, taskID); err != nil {
		return b.taskLookupFailed(ctx, chatID, err)
	}

	var prompt string
	switch field {
	case fieldTitle:
		prompt = "Enter new title for the task:"
	case fieldDescription:
		prompt = "Enter new description for the task:"
	case fieldDeadline:
		prompt = "Enter new deadline for the task (<b>YYYY-MM-DD HH:MM</b>):"
	default:
		return nil
	}
	b.setConversation(userID, &conversationState{stage: stageEditValue, taskID: taskID, field: field})
	return b.sendWithReplyMarkup(ctx, chatID, prompt, cancelKeyboard())
}

func (b *Bot) taskLookupFailed(ctx context.Context, chatID int64, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return b.sendText(ctx, chatID, "Task not found.")
	}
	_ = b.sendText(ctx, chatID, "Could not load the task, please try again later.")
	return err
}
