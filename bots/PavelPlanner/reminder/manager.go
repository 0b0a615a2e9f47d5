package reminder

import (
	"context"
	"sync"
	"time"

	"pavelplanner/bots/PavelPlanner/db"
	"pavelplanner/bots/PavelPlanner/localtime"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notifier delivers text to a chat. Implementations must honour ctx.
type Notifier interface {
	Notify(ctx context.Context, chat int64, text string) error
}

// Manager drives the reminder and digest passes on every tick.
//
// Delivery is at most once: a notification is recorded in the ledger before
// it's sent and a failed send is never retried by a later tick.
type Manager struct {
	store    db.Store
	ledger   db.Ledger
	notifier Notifier
	zone     *localtime.Zone
	planner  *Planner
	cfg      Config
	logger   *zap.SugaredLogger

	mu   sync.Mutex // held for the duration of a tick
	prev time.Time  // instant of the previous tick
}

func NewManager(cfg Config, s db.Store, lg db.Ledger, n Notifier, z *localtime.Zone, l *zap.SugaredLogger) *Manager {
	return &Manager{
		store:    s,
		ledger:   lg,
		notifier: n,
		zone:     z,
		planner:  NewPlanner(z, cfg, l),
		cfg:      cfg,
		logger:   l,
	}
}

// Planner returns the planner the manager decides with.
func (m *Manager) Planner() *Planner {
	return m.planner
}

// Run ticks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.logger.Infow("reminders are running", "interval", m.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("reminders are stopped")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.logger.Errorw("reminder tick failed", "err", err)
			}
		}
	}
}

// Tick evaluates both passes once and delivers what's due. A tick that starts
// while another one is running is skipped.
func (m *Manager) Tick(ctx context.Context) error {
	if !m.mu.TryLock() {
		m.logger.Warn("previous tick is still running; skipping")
		return nil
	}
	defer m.mu.Unlock()

	now := m.zone.Now()

	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "failed getting list of users")
	}

	var due []Notification
	for _, usr := range users {
		due = append(due, m.evaluate(ctx, now, usr)...)
	}
	m.prev = now

	m.dispatch(ctx, due)

	n, err := m.ledger.Prune(ctx, now.Add(-m.cfg.DedupRetention))
	if err != nil {
		m.logger.Errorw("failed pruning ledger", "err", err)
	} else if n > 0 {
		m.logger.Debugw("pruned ledger", "count", n)
	}

	return nil
}

func (m *Manager) evaluate(ctx context.Context, now time.Time, usr int64) []Notification {
	chat, ok, err := m.store.ResolveRecipient(ctx, usr)
	if err != nil {
		m.logger.Errorw("failed resolving recipient", "usr", usr, "err", err)
		return nil
	}
	if !ok {
		return nil
	}

	tasks, err := m.store.ListTasks(ctx, usr)
	if err != nil {
		m.logger.Errorw("failed listing tasks", "usr", usr, "err", err)
		return nil
	}

	due := m.planner.Reminders(now, m.prev, usr, chat, tasks)
	if d, ok := m.planner.Digest(now, usr, chat, tasks); ok {
		due = append(due, d)
	}
	return due
}

// dispatch claims every notification in the ledger and sends the claimed ones
// concurrently, each with its own timeout.
func (m *Manager) dispatch(ctx context.Context, due []Notification) {
	var g errgroup.Group
	g.SetLimit(m.cfg.SendConcurrency)

	for _, n := range due {
		n := n
		fresh, err := m.ledger.MarkIfAbsent(ctx, n.Key, n.At)
		if err != nil {
			m.logger.Errorw("failed marking notification; not sending", "key", n.Key, "err", err)
			continue
		}
		if !fresh {
			continue
		}

		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
			defer cancel()

			if err := m.notifier.Notify(sendCtx, n.Chat, n.Text); err != nil {
				m.logger.Errorw("failed delivering notification", "usr", n.UserID, "chat", n.Chat,
					"kind", n.Kind, "key", n.Key, "err", err)
				return nil
			}

			m.logger.Infow("notification is sent", "usr", n.UserID, "kind", n.Kind, "key", n.Key)
			return nil
		})
	}

	_ = g.Wait()
}
