package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"deadline-bot/internal/event"
	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/service"
)

const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldDeadline    = "deadline"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		b.log.Info().Int64("user", msg.From.ID).Str("command", msg.Command()).Str("args", msg.CommandArguments()).Msg("command")
		return b.handleCommand(ctx, msg)
	}

	if isCancelInput(msg.Text) && b.getConversation(msg.From.ID) != nil {
		b.clearConversation(msg.From.ID)
		return b.sendText(ctx, msg.Chat.ID, "⏪ Cancelled.")
	}

	if state := b.getConversation(msg.From.ID); state != nil {
		b.log.Debug().Int64("user", msg.From.ID).Int("stage", int(state.stage)).Msg("conversation step")
		return b.handleConversation(ctx, msg, state)
	}

	return b.sendText(ctx, msg.Chat.ID, "I did not understand that. Use /add_task to create a task or /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(ctx, msg)
	case "add_task":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.sendTaskList(ctx, msg.Chat.ID, msg.From.ID)
	case "day":
		return b.handleDay(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(ctx, msg.Chat.ID, "⏪ Cancelled.")
	default:
		return b.sendText(ctx, msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf(
		"Hello, <b>%s</b>!\n\n"+
			"I'm here to help you manage your tasks and deadlines with ease.\n\n"+
			"Here's what I can do:\n"+
			"/tasks - See your current tasks\n"+
			"/add_task - Create a new task\n"+
			"/help - Find available commands",
		html.EscapeString(name),
	)
	return b.sendText(ctx, msg.Chat.ID, text)
}

func (b *Bot) handleHelp(ctx context.Context, msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"/tasks - your tasks; tap one to see details, edit or complete it\n" +
		"/add_task - create a task step by step, with optional reminders\n" +
		"/day &lt;YYYY-MM-DD&gt; - tasks due on a day, with a button to delete them all\n" +
		"/cancel - abort the current input\n" +
		"/help - this message\n\n" +
		"A missed deadline is extended once, and you get notified when that happens."
	return b.sendText(ctx, msg.Chat.ID, text)
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	b.log.Info().Int64("user", msg.From.ID).Msg("start new task conversation")
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(ctx, msg.Chat.ID, "🆕 Enter the task title:", cancelKeyboard())
}

func (b *Bot) handleDay(ctx context.Context, msg *tgbotapi.Message) error {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		b.setConversation(msg.From.ID, &conversationState{stage: stageDayQuery})
		return b.sendWithReplyMarkup(ctx, msg.Chat.ID, "Please enter the date in <b>YYYY-MM-DD</b> format:", cancelKeyboard())
	}
	day, err := service.ParseDate(arg, b.loc)
	if err != nil {
		return b.sendText(ctx, msg.Chat.ID, "Invalid date format. Please use <b>YYYY-MM-DD</b>")
	}
	return b.sendDay(ctx, msg.Chat.ID, msg.From.ID, day)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)
	now := b.now()

	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(ctx, chatID, "The title cannot be empty. Enter the task title:", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(ctx, chatID, "✏️ Enter the task description (or press «Skip»):", skipKeyboard())

	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageDeadline
		return b.sendWithReplyMarkup(ctx, chatID, "⏰ Enter the task deadline (<b>YYYY-MM-DD HH:MM</b>):", cancelKeyboard())

	case stageDeadline:
		deadline, err := service.ParseDateTime(text, b.loc)
		if err != nil {
			return b.sendText(ctx, chatID, "Invalid date format. Please use <b>YYYY-MM-DD HH:MM</b>")
		}
		if !deadline.After(now) {
			return b.sendText(ctx, chatID, "Deadline cannot be in the past. Please enter a future date.")
		}
		state.input.Deadline = deadline
		state.stage = stageWantReminder
		return b.sendWithReplyMarkup(ctx, chatID, "🔔 Do you want to set a reminder? (yes/no)", yesNoKeyboard())

	case stageWantReminder:
		yes, err := service.ParseYesNo(text)
		if err != nil {
			return b.sendWithReplyMarkup(ctx, chatID, "Please answer with 'yes' or 'no'.", yesNoKeyboard())
		}
		if !yes {
			return b.finishTaskCreation(ctx, chatID, userID, state.input)
		}
		state.stage = stageReminderAt
		return b.sendWithReplyMarkup(ctx, chatID, "When do you want to be reminded? (<b>YYYY-MM-DD HH:MM</b>)", cancelKeyboard())

	case stageReminderAt:
		at, err := service.ParseDateTime(text, b.loc)
		if err != nil {
			return b.sendText(ctx, chatID, "Invalid date format. Please use <b>YYYY-MM-DD HH:MM</b>")
		}
		if !at.After(now) {
			return b.sendText(ctx, chatID, "Reminder time cannot be in the past. Please enter a future date.")
		}
		state.reminder.FirstAt = at
		state.stage = stageWantRepeat
		return b.sendWithReplyMarkup(ctx, chatID, "🔁 Do you want this reminder to repeat? (yes/no)", yesNoKeyboard())

	case stageWantRepeat:
		yes, err := service.ParseYesNo(text)
		if err != nil {
			return b.sendWithReplyMarkup(ctx, chatID, "Please answer with 'yes' or 'no'.", yesNoKeyboard())
		}
		if !yes {
			state.reminder.Count = 1
			state.input.Reminder = &state.reminder
			return b.finishTaskCreation(ctx, chatID, userID, state.input)
		}
		state.stage = stagePeriod
		return b.sendWithReplyMarkup(ctx, chatID,
			"How often do you want to repeat this reminder? Enter the period in <b>_d_h_m</b> format:\n\n"+
				"Examples:\n"+
				"<b>1d12h30m</b>  (1 day 12 hours 30 minutes)\n"+
				"<b>1h30m</b>  (an hour and a half)\n"+
				"<b>2d</b>  (2 days)",
			cancelKeyboard())

	case stagePeriod:
		period, err := service.ParsePeriod(text)
		if err != nil {
			return b.sendText(ctx, chatID, "Please enter a valid positive period in the format <b>_d_h_m</b>.")
		}
		state.reminder.Period = period
		state.stage = stageCount
		return b.sendWithReplyMarkup(ctx, chatID, "How many times do you want to be reminded? (Enter a number)", cancelKeyboard())

	case stageCount:
		count, err := service.ParseCount(text)
		if err != nil {
			return b.sendText(ctx, chatID, "Please enter a positive number for the count.")
		}
		state.reminder.Count = count
		state.input.Reminder = &state.reminder
		return b.finishTaskCreation(ctx, chatID, userID, state.input)

	case stageEditValue:
		return b.applyEdit(ctx, chatID, userID, state, text)

	case stageDayQuery:
		day, err := service.ParseDate(text, b.loc)
		if err != nil {
			return b.sendText(ctx, chatID, "Invalid date format. Please use <b>YYYY-MM-DD</b>")
		}
		b.clearConversation(userID)
		return b.sendDay(ctx, chatID, userID, day)

	default:
		b.clearConversation(userID)
		return b.sendText(ctx, chatID, "Conversation reset. Try again with /add_task.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID, userID int64, input service.TaskInput) error {
	b.clearConversation(userID)

	task, reminder, err := b.tasks.CreateTask(ctx, userID, input)
	if err != nil {
		if isUserError(err) {
			return b.sendText(ctx, chatID, fmt.Sprintf("Could not save the task: %s. Start again with /add_task.", html.EscapeString(err.Error())))
		}
		_ = b.sendText(ctx, chatID, "Could not save the task, please try again later.")
		return fmt.Errorf("create task: %w", err)
	}

	b.log.Info().Int64("user", userID).Str("task", task.ID).Bool("reminder", reminder != nil).Msg("task created")

	var summary strings.Builder
	summary.WriteString("✅ Task added successfully!\n")
	summary.WriteString(taskSummary(*task, b.loc))
	if reminder != nil {
		at := reminder.NextFireAt.In(b.loc).Format(service.DateTimeLayout)
		if reminder.TimesLeft == 1 {
			summary.WriteString(fmt.Sprintf("\nYou will be reminded at %s", at))
		} else {
			summary.WriteString(fmt.Sprintf("\n<b>Reminder set for</b>: %s\nReminder will repeat every %s, %d times.",
				at, event.FormatPeriod(reminder.Period), reminder.TimesLeft))
		}
	}
	return b.sendText(ctx, chatID, summary.String())
}

func (b *Bot) applyEdit(ctx context.Context, chatID, userID int64, state *conversationState, text string) error {
	var edit service.TaskEdit
	switch state.field {
	case fieldTitle:
		edit.Title = &text
	case fieldDescription:
		edit.Description = &text
	case fieldDeadline:
		deadline, err := service.ParseDateTime(text, b.loc)
		if err != nil {
			return b.sendText(ctx, chatID, "Invalid date format. Please use <b>YYYY-MM-DD HH:MM</b>")
		}
		edit.Deadline = &deadline
	default:
		b.clearConversation(userID)
		return b.sendText(ctx, chatID, "An error occurred. Please try again.")
	}

	task, err := b.tasks.EditTask(ctx, userID, state.taskID, edit)
	switch {
	case errors.Is(err, service.ErrDeadlineInPast):
		return b.sendText(ctx, chatID, "Deadline cannot be in the past. Please enter a future date.")
	case errors.Is(err, model.ErrInvalidTitle):
		return b.sendText(ctx, chatID, "The title cannot be empty. Enter a new title:")
	case errors.Is(err, repository.ErrNotFound):
		b.clearConversation(userID)
		return b.sendText(ctx, chatID, "Task not found.")
	case err != nil:
		b.clearConversation(userID)
		_ = b.sendText(ctx, chatID, "Could not update the task, please try again later.")
		return err
	}

	b.clearConversation(userID)
	b.log.Info().Int64("user", userID).Str("task", task.ID).Str("field", state.field).Msg("task edited")
	return b.sendWithReplyMarkup(ctx, chatID,
		fmt.Sprintf("Field updated successfully.\n\nHere's how the task looks now:\n\n%s\n\nDo you want to edit another field?", taskSummary(*task, b.loc)),
		editMoreKeyboard(task.ID))
}

func (b *Bot) sendTaskList(ctx context.Context, chatID, userID int64) error {
	tasks, err := b.tasks.ListTasks(ctx, userID)
	if err != nil {
		_ = b.sendText(ctx, chatID, "Could not load your tasks, please try again later.")
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return b.sendText(ctx, chatID, "You have no tasks. Add one with /add_task.")
	}

	text := service.FormatTaskList("📋 <b>Your tasks</b>", tasks, b.now().In(b.loc))
	return b.sendWithReplyMarkup(ctx, chatID, text, taskListKeyboard(tasks))
}

func (b *Bot) sendDay(ctx context.Context, chatID, userID int64, day time.Time) error {
	tasks, err := b.tasks.TasksOnDay(ctx, userID, day)
	if err != nil {
		_ = b.sendText(ctx, chatID, "Could not load your tasks, please try again later.")
		return fmt.Errorf("tasks on day: %w", err)
	}
	date := day.Format(service.DateLayout)
	if len(tasks) == 0 {
		return b.sendText(ctx, chatID, fmt.Sprintf("No tasks found for %s.", date))
	}

	text := service.FormatTaskList(fmt.Sprintf("🗓 <b>Tasks for %s</b>", date), tasks, b.now().In(b.loc))
	return b.sendWithReplyMarkup(ctx, chatID, text, dayKeyboard(date, tasks))
}

func taskSummary(task model.Task, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>Title</b>: %s\n", html.EscapeString(task.Title)))
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("<b>Description</b>: %s\n", html.EscapeString(task.Description)))
	}
	sb.WriteString(fmt.Sprintf("<b>Deadline</b>: %s", task.Deadline.In(loc).Format(service.DateTimeLayout)))
	return sb.String()
}

func isUserError(err error) bool {
	for _, target := range []error{
		service.ErrDeadlineInPast, service.ErrReminderInPast,
		model.ErrInvalidTitle, model.ErrInvalidDeadline, model.ErrInvalidUser,
		model.ErrInvalidPeriod, model.ErrInvalidCount, model.ErrInvalidFireAt,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
