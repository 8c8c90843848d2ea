package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/service"
)

const testUser int64 = 1001

type fakeAPI struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	acks     []tgbotapi.CallbackConfig
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.acks = append(f.acks, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.updates)
	}
}

func (f *fakeAPI) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1]
}

type harness struct {
	bot   *Bot
	api   *fakeAPI
	tasks *repository.TaskRepository
	notes *repository.NotificationRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "bot.db"), zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	tasks := repository.NewTaskRepository(db)
	notes := repository.NewNotificationRepository(db)
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	b := newBot(api, service.NewTaskService(tasks, notes), service.NewDigestService(tasks),
		Options{Location: time.UTC, SendRate: 1000}, zerolog.Nop())
	return &harness{bot: b, api: api, tasks: tasks, notes: notes}
}

func (h *harness) say(t *testing.T, text string) tgbotapi.MessageConfig {
	t.Helper()
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: testUser, FirstName: "Ada"},
		Chat: &tgbotapi.Chat{ID: testUser, Type: "private"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
	return h.api.last(t)
}

func (h *harness) tap(t *testing.T, data string) tgbotapi.MessageConfig {
	t.Helper()
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUser},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: testUser, Type: "private"}},
		Data:    data,
	}})
	return h.api.last(t)
}

func (h *harness) userTasks(t *testing.T) []model.Task {
	t.Helper()
	tasks, err := h.tasks.ListByUser(context.Background(), testUser)
	require.NoError(t, err)
	return tasks
}

func future(d time.Duration) string {
	return time.Now().UTC().Add(d).Format(service.DateTimeLayout)
}

func inlineData(markup interface{}) []string {
	kb, ok := markup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		return nil
	}
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, button := range row {
			if button.CallbackData != nil {
				out = append(out, *button.CallbackData)
			}
		}
	}
	return out
}

func TestAddTaskWithRepeatingReminder(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.say(t, "/add_task").Text, "title")
	assert.Contains(t, h.say(t, "Essay").Text, "description")
	assert.Contains(t, h.say(t, "five pages").Text, "deadline")
	assert.Contains(t, h.say(t, "tomorrow").Text, "Invalid date format")
	assert.Contains(t, h.say(t, "2001-01-01 10:00").Text, "cannot be in the past")
	assert.Contains(t, h.say(t, future(72*time.Hour)).Text, "set a reminder")
	assert.Contains(t, h.say(t, "maybe").Text, "'yes' or 'no'")
	assert.Contains(t, h.say(t, "yes").Text, "When do you want to be reminded")
	assert.Contains(t, h.say(t, future(24*time.Hour)).Text, "repeat")
	assert.Contains(t, h.say(t, "Y").Text, "_d_h_m")
	assert.Contains(t, h.say(t, "1w").Text, "valid positive period")
	assert.Contains(t, h.say(t, "1d12h").Text, "How many times")
	assert.Contains(t, h.say(t, "0").Text, "positive number")

	done := h.say(t, "3")
	assert.Contains(t, done.Text, "Task added successfully")
	assert.Contains(t, done.Text, "repeat every 1 d. 12 h., 3 times")
	assert.Nil(t, h.bot.getConversation(testUser))

	tasks := h.userTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Essay", tasks[0].Title)
	assert.Equal(t, "five pages", tasks[0].Description)

	reminders, err := h.notes.ListByTask(context.Background(), tasks[0].ID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, 36*time.Hour, reminders[0].Period)
	assert.Equal(t, 3, reminders[0].TimesLeft)
}

func TestAddTaskWithoutReminder(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/add_task")
	h.say(t, "Call mom")
	h.say(t, btnSkip)
	h.say(t, future(2*time.Hour))
	done := h.say(t, "no")
	assert.Contains(t, done.Text, "Task added successfully")
	assert.NotContains(t, done.Text, "Description")

	tasks := h.userTasks(t)
	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].Description)
	reminders, err := h.notes.ListByTask(context.Background(), tasks[0].ID)
	require.NoError(t, err)
	assert.Empty(t, reminders)
}

func TestCancelAbortsDialogue(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/add_task")
	h.say(t, "Something")
	assert.Contains(t, h.say(t, btnCancel).Text, "Cancelled")
	assert.Nil(t, h.bot.getConversation(testUser))
	assert.Contains(t, h.say(t, "hello").Text, "did not understand")
	assert.Empty(t, h.userTasks(t))
}

func TestTaskDetailsEditAndComplete(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/add_task")
	h.say(t, "Draft")
	h.say(t, "-")
	h.say(t, future(48*time.Hour))
	h.say(t, "no")
	task := h.userTasks(t)[0]

	list := h.say(t, "/tasks")
	assert.Contains(t, list.Text, "Draft")
	assert.Contains(t, inlineData(list.ReplyMarkup), cbTaskPrefix+task.ID)

	details := h.tap(t, cbTaskPrefix+task.ID)
	assert.Contains(t, details.Text, "Time left")
	assert.Equal(t, []string{cbEditPrefix + task.ID, cbDeletePrefix + task.ID}, inlineData(details.ReplyMarkup))

	h.tap(t, cbEditPrefix+task.ID)
	h.tap(t, cbFieldPrefix+fieldTitle+":"+task.ID)
	updated := h.say(t, "Final draft")
	assert.Contains(t, updated.Text, "Field updated successfully")
	assert.Contains(t, updated.Text, "Final draft")

	h.tap(t, cbFieldPrefix+fieldDeadline+":"+task.ID)
	assert.Contains(t, h.say(t, "2001-01-01 00:00").Text, "cannot be in the past")
	newDeadline := future(96 * time.Hour)
	h.say(t, newDeadline)
	assert.Contains(t, h.tap(t, cbFinishEditPrefix+task.ID).Text, newDeadline)

	got := h.userTasks(t)[0]
	assert.Equal(t, "Final draft", got.Title)
	assert.Equal(t, newDeadline, got.Deadline.UTC().Format(service.DateTimeLayout))

	confirm := h.tap(t, cbDeletePrefix+task.ID)
	assert.Contains(t, inlineData(confirm.ReplyMarkup), cbConfirmDelete+task.ID)
	assert.Len(t, h.userTasks(t), 1)

	h.tap(t, cbConfirmDelete+task.ID)
	assert.Empty(t, h.userTasks(t))
	assert.Contains(t, h.tap(t, cbTaskPrefix+task.ID).Text, "Task not found")
}

func TestOtherUsersTasksAreHidden(t *testing.T) {
	h := newHarness(t)
	other, err := model.NewTask(testUser+1, "Secret", "", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.tasks.Create(context.Background(), &other, nil))

	assert.Contains(t, h.tap(t, cbTaskPrefix+other.ID).Text, "Task not found")
	assert.Contains(t, h.tap(t, cbEditPrefix+other.ID).Text, "Task not found")
	h.tap(t, cbConfirmDelete+other.ID)

	_, err = h.tasks.FindByID(context.Background(), other.ID)
	require.NoError(t, err)
}

func TestDayListingAndDeleteAll(t *testing.T) {
	h := newHarness(t)
	day := time.Now().UTC().AddDate(0, 0, 5)
	date := day.Format(service.DateLayout)
	for _, hm := range []string{"09:00", "18:30"} {
		h.say(t, "/add_task")
		h.say(t, "Task "+hm)
		h.say(t, "-")
		h.say(t, date+" "+hm)
		h.say(t, "no")
	}
	h.say(t, "/add_task")
	h.say(t, "Next day")
	h.say(t, "-")
	h.say(t, day.AddDate(0, 0, 1).Format(service.DateLayout)+" 09:00")
	h.say(t, "no")

	assert.Contains(t, h.say(t, "/day 2025-13-40").Text, "Invalid date format")

	listing := h.say(t, "/day "+date)
	assert.Contains(t, listing.Text, "Task 09:00")
	assert.Contains(t, listing.Text, "Task 18:30")
	assert.NotContains(t, listing.Text, "Next day")
	assert.Equal(t, cbDayClearPrefix+date, inlineData(listing.ReplyMarkup)[0])

	h.tap(t, cbDayClearPrefix+date)
	assert.Len(t, h.userTasks(t), 3)
	assert.Contains(t, h.tap(t, cbConfirmDay+date).Text, "deleted successfully (2)")

	left := h.userTasks(t)
	require.Len(t, left, 1)
	assert.Equal(t, "Next day", left[0].Title)

	h.say(t, "/day")
	assert.Contains(t, h.say(t, date).Text, "No tasks found")
}

func TestSendTextAndDigests(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.bot.SendText(context.Background(), 42, "<b>hi</b>"))
	msg := h.api.last(t)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)

	task, err := model.NewTask(testUser, "Due today", "", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, h.tasks.Create(context.Background(), &task, nil))

	h.bot.now = func() time.Time { return task.Deadline }
	require.NoError(t, h.bot.SendDigests(context.Background()))
	digest := h.api.last(t)
	assert.Equal(t, testUser, digest.ChatID)
	assert.Contains(t, digest.Text, "Due today")
}

func TestStartStopsWithContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bot.Start(ctx) }()

	h.api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: testUser},
		Chat:     &tgbotapi.Chat{ID: testUser, Type: "private"},
		Text:     "/help",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
	}}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.Contains(t, h.api.last(t).Text, "Commands")
}

func TestShortTitle(t *testing.T) {
	assert.Equal(t, "short", shortTitle("  short ", 10))
	assert.Equal(t, "abcd…", shortTitle("abcdefgh", 5))
	assert.Equal(t, "привет", shortTitle("привет", 6))
}
