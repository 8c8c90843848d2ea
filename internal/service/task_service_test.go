package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/service"
)

func newTaskService(t *testing.T) (*service.TaskService, *fixture) {
	f := newFixture(t)
	return service.NewTaskService(f.tasks, f.notes), f
}

func TestCreateTaskWithReminder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService(t)
	deadline := time.Now().Add(72 * time.Hour).Truncate(time.Minute)

	task, reminder, err := svc.CreateTask(ctx, 10, service.TaskInput{
		Title:       "  Report ",
		Description: "quarterly",
		Deadline:    deadline,
		Reminder:    &service.ReminderInput{FirstAt: deadline.Add(-24 * time.Hour), Period: 6 * time.Hour, Count: 3},
	})
	require.NoError(t, err)
	require.NotNil(t, reminder)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "Report", task.Title)
	assert.Equal(t, task.ID, reminder.TaskID)

	reminders, err := svc.Reminders(ctx, 10, task.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, 3, reminders[0].TimesLeft)
	assert.Equal(t, 6*time.Hour, reminders[0].Period)
}

func TestCreateTaskOneShotReminderGetsPeriod(t *testing.T) {
	svc, _ := newTaskService(t)
	deadline := time.Now().Add(72 * time.Hour)

	_, reminder, err := svc.CreateTask(context.Background(), 10, service.TaskInput{
		Title:    "Call",
		Deadline: deadline,
		Reminder: &service.ReminderInput{FirstAt: deadline.Add(-time.Hour), Count: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, reminder.Period)
}

func TestCreateTaskRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService(t)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		input service.TaskInput
		want  error
	}{
		{"empty title", service.TaskInput{Title: " ", Deadline: future}, model.ErrInvalidTitle},
		{"past deadline", service.TaskInput{Title: "x", Deadline: time.Now().Add(-time.Hour)}, service.ErrDeadlineInPast},
		{"past reminder", service.TaskInput{Title: "x", Deadline: future, Reminder: &service.ReminderInput{
			FirstAt: time.Now().Add(-time.Minute), Period: time.Hour, Count: 2,
		}}, service.ErrReminderInPast},
		{"zero count", service.TaskInput{Title: "x", Deadline: future, Reminder: &service.ReminderInput{
			FirstAt: future, Period: time.Hour, Count: 0,
		}}, model.ErrInvalidCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateTask(ctx, 10, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	tasks, err := svc.ListTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService(t)
	task, _, err := svc.CreateTask(ctx, 10, service.TaskInput{Title: "Mine", Deadline: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	_, err = svc.GetTask(ctx, 11, task.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.Reminders(ctx, 11, task.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	title := "Theirs"
	_, err = svc.EditTask(ctx, 11, task.ID, service.TaskEdit{Title: &title})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Error(t, svc.DeleteTask(ctx, 11, task.ID))
	got, err := svc.GetTask(ctx, 10, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mine", got.Title)
}

func TestEditTaskKeepsExtension(t *testing.T) {
	ctx := context.Background()
	svc, f := newTaskService(t)
	task, _, err := svc.CreateTask(ctx, 10, service.TaskInput{Title: "Draft", Deadline: time.Now().Add(time.Minute)})
	require.NoError(t, err)

	_, err = f.poller.RunOnce(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)

	deadline := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	desc := "final version"
	edited, err := svc.EditTask(ctx, 10, task.ID, service.TaskEdit{Description: &desc, Deadline: &deadline})
	require.NoError(t, err)
	assert.Equal(t, "Draft", edited.Title)

	got, err := svc.GetTask(ctx, 10, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "final version", got.Description)
	assert.True(t, deadline.Equal(got.Deadline))
	assert.True(t, got.WasExtended)

	past := time.Now().Add(-time.Hour)
	_, err = svc.EditTask(ctx, 10, task.ID, service.TaskEdit{Deadline: &past})
	assert.ErrorIs(t, err, service.ErrDeadlineInPast)

	empty := ""
	_, err = svc.EditTask(ctx, 10, task.ID, service.TaskEdit{Title: &empty})
	assert.ErrorIs(t, err, model.ErrInvalidTitle)
}

func TestTasksOnDayAndDeleteDay(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService(t)
	day := time.Now().AddDate(0, 0, 3)
	y, m, d := day.Date()
	noon := time.Date(y, m, d, 12, 0, 0, 0, time.Local)

	for _, at := range []time.Time{noon, noon.Add(3 * time.Hour), noon.AddDate(0, 0, 1)} {
		_, _, err := svc.CreateTask(ctx, 10, service.TaskInput{Title: "t", Deadline: at, Reminder: &service.ReminderInput{
			FirstAt: at.Add(-time.Hour), Period: time.Hour, Count: 1,
		}})
		require.NoError(t, err)
	}

	onDay, err := svc.TasksOnDay(ctx, 10, noon)
	require.NoError(t, err)
	assert.Len(t, onDay, 2)

	n, err := svc.DeleteDay(ctx, 10, noon)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := svc.ListTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.True(t, noon.AddDate(0, 0, 1).Equal(left[0].Deadline))

	reminders, err := svc.Reminders(ctx, 10, onDay[0].ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, reminders)
}
