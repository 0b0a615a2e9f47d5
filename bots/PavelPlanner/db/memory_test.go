package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func newTask(usr int64, text string) Task {
	return Task{UserID: usr, Sphere: "work", Difficulty: 2, Importance: 3, Text: text}
}

func TestMemoryAddKeepsCreationOrder(t *testing.T) {
	m := NewMemory()

	a, err := m.AddTask(ctx, newTask(1, "a"))
	require.NoError(t, err)
	b, err := m.AddTask(ctx, newTask(1, "b"))
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, StatusRecorded, a.Status)

	tasks, err := m.ListTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].Text)
	assert.Equal(t, "b", tasks[1].Text)
}

func TestMemoryAddResetsStatusAndDue(t *testing.T) {
	m := NewMemory()

	task := newTask(1, "a")
	task.Status = StatusInWork
	task.DueDate, task.DueTime = "2026-10-16", "10:00"

	added, err := m.AddTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, StatusRecorded, added.Status)
	assert.Empty(t, added.DueDate)
	assert.Empty(t, added.DueTime)
}

func TestMemoryAddValidates(t *testing.T) {
	m := NewMemory()

	for _, task := range []Task{
		{UserID: 1, Difficulty: 1, Importance: 1},
		{UserID: 1, Text: "x", Difficulty: 7, Importance: 1},
		{UserID: 1, Text: "x", Difficulty: 1, Importance: 0},
	} {
		_, err := m.AddTask(ctx, task)
		assert.ErrorIs(t, err, ErrInvalidTask)
	}
}

func TestMemoryListTasksReturnsCopies(t *testing.T) {
	m := NewMemory()
	_, err := m.AddTask(ctx, newTask(1, "a"))
	require.NoError(t, err)

	tasks, _ := m.ListTasks(ctx, 1)
	tasks[0].Text = "changed"

	tasks, _ = m.ListTasks(ctx, 1)
	assert.Equal(t, "a", tasks[0].Text)
}

func TestMemoryTakeTask(t *testing.T) {
	m := NewMemory()
	task, _ := m.AddTask(ctx, newTask(1, "a"))

	taken, err := m.TakeTask(ctx, 1, task.ID, "2026-10-16", "10:00")
	require.NoError(t, err)
	assert.Equal(t, StatusInWork, taken.Status)
	assert.True(t, taken.HasDueInstant())

	retaken, err := m.TakeTask(ctx, 1, task.ID, "2026-10-17", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-17", retaken.DueDate)
	assert.Empty(t, retaken.DueTime)

	_, err = m.TakeTask(ctx, 1, task.ID, "", "10:00")
	assert.ErrorIs(t, err, ErrInvalidDue)

	_, err = m.TakeTask(ctx, 2, task.ID, "", "")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryRemoveTask(t *testing.T) {
	m := NewMemory()
	a, _ := m.AddTask(ctx, newTask(1, "a"))
	b, _ := m.AddTask(ctx, newTask(1, "b"))
	c, _ := m.AddTask(ctx, newTask(1, "c"))

	require.NoError(t, m.RemoveTask(ctx, 1, b.ID))
	assert.ErrorIs(t, m.RemoveTask(ctx, 1, b.ID), ErrTaskNotFound)

	tasks, _ := m.ListTasks(ctx, 1)
	require.Len(t, tasks, 2)
	assert.Equal(t, a.ID, tasks[0].ID)
	assert.Equal(t, c.ID, tasks[1].ID)
}

func TestMemoryListUsers(t *testing.T) {
	m := NewMemory()
	_, _ = m.AddTask(ctx, newTask(3, "a"))
	require.NoError(t, m.BindRecipient(ctx, 1, 100))
	require.NoError(t, m.BindRecipient(ctx, 3, 300))

	users, err := m.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, users)
}

func TestMemoryRecipients(t *testing.T) {
	m := NewMemory()

	_, ok, err := m.ResolveRecipient(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.BindRecipient(ctx, 1, 100))
	require.NoError(t, m.BindRecipient(ctx, 1, 200))

	chat, ok, err := m.ResolveRecipient(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(200), chat)
}

func TestMemoryLedger(t *testing.T) {
	m := NewMemory()
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	ok, err := m.MarkIfAbsent(ctx, "k1", base)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = m.MarkIfAbsent(ctx, "k1", base)
	assert.False(t, ok)

	_, _ = m.MarkIfAbsent(ctx, "k3", base.Add(2*time.Hour))
	_, _ = m.MarkIfAbsent(ctx, "k2", base.Add(time.Hour))

	n, err := m.Prune(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, _ = m.MarkIfAbsent(ctx, "k1", base)
	assert.True(t, ok, "pruned key can be marked again")
	ok, _ = m.MarkIfAbsent(ctx, "k3", base)
	assert.False(t, ok)
}

func TestMemoryLedgerConcurrentMarks(t *testing.T) {
	m := NewMemory()
	at := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := m.MarkIfAbsent(ctx, "key", at)
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
}
