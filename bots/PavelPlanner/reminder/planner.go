package reminder

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pavelplanner/bots/PavelPlanner/db"
	"pavelplanner/bots/PavelPlanner/localtime"

	"go.uber.org/zap"
)

type Kind string

const (
	KindReminder Kind = "reminder"
	KindDigest   Kind = "digest"
)

const numAssumedAvgLine = 64

const (
	txtDigestHeader = "Good morning! Your tasks in work:\n"
	txtNoTasksToday = "Good morning! You have no tasks in work today."

	fmtReminder    = "⏰ In %d min, at %s:\n%s"
	fmtLineTimed   = "⏰ %s %s"
	fmtLineDated   = "📅 %s %s"
	fmtLineUndated = "• %s"
)

// Notification is a message the scheduler decided to deliver. Key identifies
// the notified event; At is the instant of that event.
type Notification struct {
	Kind   Kind
	UserID int64
	Chat   int64
	Key    string
	At     time.Time
	Text   string
}

func reminderKey(usr int64, t *db.Task) string {
	return fmt.Sprintf("%s:%d:%s:%s:%s", KindReminder, usr, t.ID, t.DueDate, t.DueTime)
}

func digestKey(usr int64, date string) string {
	return fmt.Sprintf("%s:%d:%s", KindDigest, usr, date)
}

// Planner decides which notifications are due at a given instant. It reads
// nothing but its arguments and never consults the ledger.
type Planner struct {
	zone   *localtime.Zone
	cfg    Config
	logger *zap.SugaredLogger
}

func NewPlanner(zone *localtime.Zone, cfg Config, l *zap.SugaredLogger) *Planner {
	return &Planner{zone: zone, cfg: cfg, logger: l}
}

// minutesUntil returns due-now rounded to the nearest minute.
func minutesUntil(due, now time.Time) int {
	return int(due.Sub(now).Round(time.Minute) / time.Minute)
}

// Reminders returns "due soon" notifications for the user's tasks. A task
// fires when the rounded time left is within [lead-window, lead]. When prev,
// the instant of the previous evaluation, saw the task before the window and
// now sees it after the window, the task fires too as long as it's still in
// the future.
func (p *Planner) Reminders(now, prev time.Time, usr, chat int64, tasks []db.Task) []Notification {
	lead := int(p.cfg.ReminderLead / time.Minute)
	lo := lead - int(p.cfg.ReminderWindow/time.Minute)

	var out []Notification
	for i := range tasks {
		t := &tasks[i]
		if !t.InWork() || !t.HasDueInstant() {
			continue
		}

		due, err := p.zone.ToLocal(t.DueDate, t.DueTime)
		if err != nil {
			p.logger.Warnw("malformed due instant; task won't be reminded", "usr", usr, "task", t.ID,
				"dueDate", t.DueDate, "dueTime", t.DueTime, "err", err)
			continue
		}

		left := minutesUntil(due, now)
		inWindow := left >= lo && left <= lead
		crossed := !prev.IsZero() && prev.Before(now) && due.After(now) &&
			minutesUntil(due, prev) > lead && left < lo
		if !inWindow && !crossed {
			continue
		}

		out = append(out, Notification{
			Kind:   KindReminder,
			UserID: usr,
			Chat:   chat,
			Key:    reminderKey(usr, t),
			At:     due,
			Text:   fmt.Sprintf(fmtReminder, left, t.DueTime, describe(t)),
		})
	}

	return out
}

// DigestStart returns the start of the digest window on the civil day of now.
func (p *Planner) DigestStart(now time.Time) time.Time {
	return p.zone.Midnight(now).Add(p.cfg.DigestAt)
}

// Digest returns the morning summary for the user if now is inside the
// digest window.
func (p *Planner) Digest(now time.Time, usr, chat int64, tasks []db.Task) (Notification, bool) {
	start := p.DigestStart(now)
	if now.Before(start) || !now.Before(start.Add(p.cfg.DigestWindow)) {
		return Notification{}, false
	}

	today := now.In(p.zone.Location()).Format(localtime.DateLayout)
	return Notification{
		Kind:   KindDigest,
		UserID: usr,
		Chat:   chat,
		Key:    digestKey(usr, today),
		At:     start,
		Text:   RenderDigest(today, tasks),
	}, true
}

// RenderDigest composes the summary of in-work tasks as of the given local
// date: overdue tasks first, then dated tasks in chronological order, then
// undated ones.
func RenderDigest(today string, tasks []db.Task) string {
	inWork := make([]db.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.InWork() {
			inWork = append(inWork, t)
		}
	}

	if len(inWork) == 0 {
		return txtNoTasksToday
	}

	SortForDigest(today, inWork)

	var sb strings.Builder
	sb.Grow(len(txtDigestHeader) + numAssumedAvgLine*len(inWork))
	sb.WriteString(txtDigestHeader)
	for i := range inWork {
		sb.WriteString(digestLine(today, &inWork[i]))
		sb.WriteString("\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// dueOf returns the parsable due fields of the task; malformed ones are
// treated as absent. A time without a date is absent too.
func dueOf(t *db.Task) (date, tm string) {
	if !localtime.ValidDate(t.DueDate) {
		return "", ""
	}
	if !localtime.ValidTime(t.DueTime) {
		return t.DueDate, ""
	}
	return t.DueDate, t.DueTime
}

func digestRank(date, today string) int {
	switch {
	case date == "":
		return 2
	case date < today:
		return 0
	default:
		return 1
	}
}

// SortForDigest orders tasks in place: overdue first, then by date, tasks
// with a time before tasks without one on the same date, then by time.
// Tasks without a date go last. Ties keep creation order.
func SortForDigest(today string, tasks []db.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		di, ti := dueOf(&tasks[i])
		dj, tj := dueOf(&tasks[j])

		if ri, rj := digestRank(di, today), digestRank(dj, today); ri != rj {
			return ri < rj
		}
		if di != dj {
			return di < dj
		}
		if (ti == "") != (tj == "") {
			return ti != ""
		}
		return ti < tj
	})
}

func digestLine(today string, t *db.Task) string {
	date, tm := dueOf(t)
	switch {
	case tm != "" && date == today:
		return fmt.Sprintf(fmtLineTimed, tm, describe(t))
	case tm != "":
		return fmt.Sprintf(fmtLineTimed, date+" "+tm, describe(t))
	case date != "":
		return fmt.Sprintf(fmtLineDated, date, describe(t))
	default:
		return fmt.Sprintf(fmtLineUndated, describe(t))
	}
}

func describe(t *db.Task) string {
	if t.Sphere == "" {
		return t.Text
	}
	return t.Text + " (" + t.Sphere + ")"
}
