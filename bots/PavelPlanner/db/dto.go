package db

// Status is the lifecycle state of a task.
type Status string

const (
	StatusRecorded Status = "recorded"
	StatusInWork   Status = "in_work"
)

const (
	DifficultyMin = 1
	DifficultyMax = 6
	ImportanceMin = 1
	ImportanceMax = 4
)

// Task is a user's to-do. DueDate (YYYY-MM-DD) and DueTime (HH:MM) are civil
// values in the planner's local zone; an empty string means the field isn't
// set. Recorded tasks never have due fields.
type Task struct {
	ID         string
	UserID     int64
	Sphere     string
	Difficulty int // 1..6
	Importance int // 1..4
	Text       string
	Status     Status
	DueDate    string
	DueTime    string
	ProjectID  string
}

// InWork reports whether the task takes part in reminders and digests.
func (t *Task) InWork() bool {
	return t.Status == StatusInWork
}

// HasDueInstant reports whether both due fields are set.
func (t *Task) HasDueInstant() bool {
	return t.DueDate != "" && t.DueTime != ""
}
