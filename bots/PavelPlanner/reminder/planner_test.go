package reminder

import (
	"testing"
	"time"

	"pavelplanner/bots/PavelPlanner/db"
	"pavelplanner/bots/PavelPlanner/localtime"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testConfig = Config{
	PollInterval:    time.Minute,
	ReminderLead:    time.Hour,
	ReminderWindow:  time.Minute,
	DigestAt:        9 * time.Hour,
	DigestWindow:    2 * time.Minute,
	DedupRetention:  48 * time.Hour,
	SendTimeout:     time.Second,
	SendConcurrency: 4,
}

// newTestPlanner returns a planner whose zone is UTC+3 and the instant
// 2026-10-16 08:00 local.
func newTestPlanner(t *testing.T) (*Planner, time.Time) {
	t.Helper()

	clk := clock.NewFake()
	zone := localtime.New(clk, localtime.DefaultOffset)
	now, err := zone.ToLocal("2026-10-16", "08:00")
	require.NoError(t, err)
	clk.Set(now)

	return NewPlanner(zone, testConfig, zap.NewNop().Sugar()), zone.Now()
}

func dueTask(id string, due time.Time) db.Task {
	return db.Task{
		ID:      id,
		UserID:  1,
		Text:    "task " + id,
		Status:  db.StatusInWork,
		DueDate: due.Format(localtime.DateLayout),
		DueTime: due.Format(localtime.TimeLayout),
	}
}

func ids(ns []Notification) []string {
	var out []string
	for _, n := range ns {
		out = append(out, n.Key)
	}
	return out
}

func TestRemindersWindowBoundary(t *testing.T) {
	p, now := newTestPlanner(t)

	tests := []struct {
		left time.Duration
		fire bool
	}{
		{58 * time.Minute, false},
		{59 * time.Minute, true},
		{60 * time.Minute, true},
		{61 * time.Minute, false},
		{59*time.Minute + 29*time.Second, true},
		{60*time.Minute + 29*time.Second, true},
		{60*time.Minute + 31*time.Second, false},
		{58*time.Minute + 29*time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.left.String(), func(t *testing.T) {
			// due fields have minute precision, so move now instead of due
			due := now.Add(time.Hour).Truncate(time.Minute)
			task := dueTask("a", due)

			got := p.Reminders(due.Add(-tt.left), time.Time{}, 1, 100, []db.Task{task})
			if tt.fire {
				require.Len(t, got, 1)
				assert.Equal(t, KindReminder, got[0].Kind)
				assert.Equal(t, int64(100), got[0].Chat)
				assert.True(t, got[0].At.Equal(due))
				assert.Contains(t, got[0].Text, "task a")
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestRemindersDueExactlyInAnHour(t *testing.T) {
	p, now := newTestPlanner(t)

	got := p.Reminders(now, time.Time{}, 1, 100, []db.Task{dueTask("a", now.Add(60*time.Minute))})
	require.Len(t, got, 1)
	assert.Equal(t, "reminder:1:a:2026-10-16:09:00", got[0].Key)
	assert.Equal(t, "⏰ In 60 min, at 09:00:\ntask a", got[0].Text)
}

func TestRemindersCatchUpSkippedWindow(t *testing.T) {
	p, now := newTestPlanner(t)
	task := dueTask("a", now.Add(57*time.Minute))

	assert.Empty(t, p.Reminders(now, time.Time{}, 1, 100, []db.Task{task}))

	got := p.Reminders(now, now.Add(-5*time.Minute), 1, 100, []db.Task{task})
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "In 57 min")

	// the previous tick was already inside the window
	assert.Empty(t, p.Reminders(now, now.Add(-2*time.Minute), 1, 100, []db.Task{task}))
}

func TestRemindersCatchUpIgnoresPastTasks(t *testing.T) {
	p, now := newTestPlanner(t)
	task := dueTask("a", now.Add(-time.Minute))

	assert.Empty(t, p.Reminders(now, now.Add(-2*time.Hour), 1, 100, []db.Task{task}))
}

func TestRemindersSkipsIneligibleTasks(t *testing.T) {
	p, now := newTestPlanner(t)
	due := now.Add(time.Hour)

	recorded := dueTask("recorded", due)
	recorded.Status = db.StatusRecorded

	noTime := dueTask("notime", due)
	noTime.DueTime = ""

	malformed := dueTask("malformed", due)
	malformed.DueTime = "9 o'clock"

	badDate := dueTask("baddate", due)
	badDate.DueDate = "16/10/2026"

	got := p.Reminders(now, time.Time{}, 1, 100, []db.Task{recorded, noTime, malformed, badDate, dueTask("ok", due)})
	assert.Equal(t, []string{"reminder:1:ok:2026-10-16:09:00"}, ids(got))
}

func TestReminderKeyChangesWithDue(t *testing.T) {
	task := dueTask("a", time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	before := reminderKey(1, &task)

	task.DueTime = "10:00"
	assert.NotEqual(t, before, reminderKey(1, &task))
}

func TestDigestWindow(t *testing.T) {
	p, now := newTestPlanner(t)
	start := now.Add(time.Hour) // 09:00 local

	tests := []struct {
		at   time.Time
		fire bool
	}{
		{start.Add(-time.Second), false},
		{start, true},
		{start.Add(time.Minute + 59*time.Second), true},
		{start.Add(2 * time.Minute), false},
		{start.Add(12 * time.Hour), false},
	}

	for _, tt := range tests {
		n, ok := p.Digest(tt.at, 1, 100, nil)
		assert.Equal(t, tt.fire, ok, tt.at.String())
		if ok {
			assert.Equal(t, "digest:1:2026-10-16", n.Key)
			assert.True(t, n.At.Equal(start))
		}
	}
}

func TestDigestOrdering(t *testing.T) {
	p, now := newTestPlanner(t)

	tasks := []db.Task{
		{ID: "d", Text: "D", Status: db.StatusInWork},
		{ID: "b", Text: "B", Status: db.StatusInWork, DueDate: "2026-10-16", DueTime: "10:00"},
		{ID: "a", Text: "A", Status: db.StatusInWork, DueDate: "2026-10-15"},
		{ID: "c", Text: "C", Status: db.StatusInWork, DueDate: "2026-10-16", DueTime: "08:00"},
	}

	n, ok := p.Digest(now.Add(time.Hour), 1, 100, tasks)
	require.True(t, ok)
	assert.Equal(t, txtDigestHeader+"📅 2026-10-15 A\n⏰ 08:00 C\n⏰ 10:00 B\n• D", n.Text)
}

func TestSortForDigest(t *testing.T) {
	tasks := []db.Task{
		{ID: "undated"},
		{ID: "tomorrow-date", DueDate: "2026-10-17"},
		{ID: "tomorrow-early", DueDate: "2026-10-17", DueTime: "07:00"},
		{ID: "today-dated", DueDate: "2026-10-16"},
		{ID: "today-late", DueDate: "2026-10-16", DueTime: "18:00"},
		{ID: "overdue-old", DueDate: "2026-10-01", DueTime: "12:00"},
		{ID: "overdue-recent", DueDate: "2026-10-15", DueTime: "09:00"},
		{ID: "malformed", DueDate: "someday", DueTime: "10:00"},
		{ID: "today-badtime", DueDate: "2026-10-16", DueTime: "noon"},
	}

	SortForDigest("2026-10-16", tasks)

	var got []string
	for _, t := range tasks {
		got = append(got, t.ID)
	}
	assert.Equal(t, []string{
		"overdue-old", "overdue-recent",
		"today-late", "today-dated", "today-badtime",
		"tomorrow-early", "tomorrow-date",
		"undated", "malformed",
	}, got)
}

func TestRenderDigestLines(t *testing.T) {
	tasks := []db.Task{
		{Text: "call mom", Sphere: "family", Status: db.StatusInWork, DueDate: "2026-10-15", DueTime: "19:00"},
		{Text: "gym", Status: db.StatusInWork, DueDate: "2026-10-16", DueTime: "bad"},
		{Text: "read", Status: db.StatusInWork},
		{Text: "idea", Status: db.StatusRecorded},
	}

	assert.Equal(t, txtDigestHeader+"⏰ 2026-10-15 19:00 call mom (family)\n📅 2026-10-16 gym\n• read",
		RenderDigest("2026-10-16", tasks))
}

func TestRenderDigestWithoutTasksInWork(t *testing.T) {
	recorded := []db.Task{{Text: "idea", Status: db.StatusRecorded, DueDate: "2026-10-16", DueTime: "10:00"}}

	assert.Equal(t, txtNoTasksToday, RenderDigest("2026-10-16", nil))
	assert.Equal(t, txtNoTasksToday, RenderDigest("2026-10-16", recorded))
}
