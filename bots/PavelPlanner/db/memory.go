package db

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a volatile Store and Ledger. Everything is lost on restart.
type Memory struct {
	mu         sync.RWMutex
	tasks      map[int64][]Task // in creation order
	recipients map[int64]int64  // user to chat

	ledgerMu sync.Mutex
	marks    map[string]*mark
	expiry   markQueue
}

func NewMemory() *Memory {
	return &Memory{
		tasks:      make(map[int64][]Task),
		recipients: make(map[int64]int64),
		marks:      make(map[string]*mark),
	}
}

// ListUsers returns users that have tasks or a bound recipient, sorted.
func (m *Memory) ListUsers(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]struct{}, len(m.tasks)+len(m.recipients))
	for usr, tasks := range m.tasks {
		if len(tasks) > 0 {
			seen[usr] = struct{}{}
		}
	}
	for usr := range m.recipients {
		seen[usr] = struct{}{}
	}

	users := make([]int64, 0, len(seen))
	for usr := range seen {
		users = append(users, usr)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (m *Memory) ListTasks(_ context.Context, usr int64) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]Task, len(m.tasks[usr]))
	copy(tasks, m.tasks[usr])
	return tasks, nil
}

// AddTask records a new task. The ID is generated, status and due fields are
// reset.
func (m *Memory) AddTask(_ context.Context, t Task) (Task, error) {
	if err := validateNew(&t); err != nil {
		return Task{}, err
	}

	t.ID = uuid.NewString()
	t.Status = StatusRecorded
	t.DueDate, t.DueTime = "", ""

	m.mu.Lock()
	m.tasks[t.UserID] = append(m.tasks[t.UserID], t)
	m.mu.Unlock()

	return t, nil
}

func (m *Memory) TakeTask(_ context.Context, usr int64, id, dueDate, dueTime string) (Task, error) {
	if err := validateDue(dueDate, dueTime); err != nil {
		return Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(usr, id)
	if i < 0 {
		return Task{}, ErrTaskNotFound
	}

	t := &m.tasks[usr][i]
	t.Status = StatusInWork
	t.DueDate, t.DueTime = dueDate, dueTime
	return *t, nil
}

func (m *Memory) RemoveTask(_ context.Context, usr int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(usr, id)
	if i < 0 {
		return ErrTaskNotFound
	}

	tasks := m.tasks[usr]
	m.tasks[usr] = append(tasks[:i:i], tasks[i+1:]...)
	return nil
}

func (m *Memory) find(usr int64, id string) int {
	for i, t := range m.tasks[usr] {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) ResolveRecipient(_ context.Context, usr int64) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, ok := m.recipients[usr]
	return chat, ok, nil
}

func (m *Memory) BindRecipient(_ context.Context, usr, chat int64) error {
	m.mu.Lock()
	m.recipients[usr] = chat
	m.mu.Unlock()
	return nil
}

func (m *Memory) MarkIfAbsent(_ context.Context, key string, at time.Time) (bool, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	if _, ok := m.marks[key]; ok {
		return false, nil
	}

	mk := &mark{key: key, at: at}
	m.marks[key] = mk
	heap.Push(&m.expiry, mk)
	return true, nil
}

func (m *Memory) Prune(_ context.Context, before time.Time) (int, error) {
	m.ledgerMu.Lock()
	defer m.ledgerMu.Unlock()

	n := 0
	for len(m.expiry) > 0 && m.expiry[0].at.Before(before) {
		mk := heap.Pop(&m.expiry).(*mark)
		delete(m.marks, mk.key)
		n++
	}
	return n, nil
}
