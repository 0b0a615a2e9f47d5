package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
)

/*
DB tables:
- tasks:
	- task_id: text - task ID (UUID)
	- user_id: bigint - task owner
	- sphere, text, project_id: text - descriptive fields
	- difficulty: smallint - 1..6
	- importance: smallint - 1..4
	- status: text - recorded or in_work
	- due_date: text - YYYY-MM-DD in the local zone, NULL if not set
	- due_time: text - HH:MM in the local zone, NULL if not set
	- created_on: timestamptz
	- seq: bigserial - creation order
- recipients:
	- user_id: bigint - primary key
	- chat_id: bigint - chat to deliver notifications to
- ledger:
	- key: text - notification identity, primary key
	- at: timestamptz - instant of the notified event, used for eviction
*/
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id    text PRIMARY KEY,
	user_id    bigint NOT NULL,
	sphere     text NOT NULL,
	difficulty smallint NOT NULL,
	importance smallint NOT NULL,
	text       text NOT NULL,
	status     text NOT NULL,
	due_date   text,
	due_time   text,
	project_id text,
	created_on timestamptz NOT NULL,
	seq        bigserial
);
CREATE INDEX IF NOT EXISTS tasks_user_id_idx ON tasks(user_id, seq);
CREATE TABLE IF NOT EXISTS recipients (
	user_id bigint PRIMARY KEY,
	chat_id bigint NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger (
	key text PRIMARY KEY,
	at  timestamptz NOT NULL
);`

const taskColumns = `task_id, user_id, sphere, difficulty, importance, text, status,
COALESCE(due_date, ''), COALESCE(due_time, ''), COALESCE(project_id, '')`

// pgxIface is the part of *pgxpool.Pool the store uses.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres is a durable Store and Ledger.
type Postgres struct {
	conn pgxIface
	clk  clock.Clock
}

// NewPostgres connects to the database and creates missing tables.
// Connection string should look like postgresql://localhost:5432/planner?user=admn&password=passwd
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating connection pool")
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed pinging database")
	}

	p := newPostgres(pool, clock.New())
	if err = p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func newPostgres(conn pgxIface, clk clock.Clock) *Postgres {
	return &Postgres{conn: conn, clk: clk}
}

// Migrate creates the tables if they don't exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.conn.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "failed creating schema")
	}
	return nil
}

func (p *Postgres) Close() {
	p.conn.Close()
}

// ListUsers returns users that have tasks or a bound recipient
func (p *Postgres) ListUsers(ctx context.Context) ([]int64, error) {
	rows, err := p.conn.Query(ctx, `SELECT user_id FROM tasks
UNION
SELECT user_id FROM recipients
ORDER BY user_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed fetching list of users")
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var usr int64
		if err = rows.Scan(&usr); err != nil {
			return nil, errors.Wrap(err, "failed reading user ID")
		}
		users = append(users, usr)
	}

	return users, errors.Wrap(rows.Err(), "failed iterating users")
}

func (p *Postgres) ListTasks(ctx context.Context, usr int64) ([]Task, error) {
	rows, err := p.conn.Query(ctx, `SELECT `+taskColumns+`
FROM tasks
WHERE user_id=$1
ORDER BY seq ASC`, usr)
	if err != nil {
		return nil, errors.Wrap(err, "failed querying tasks")
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, errors.Wrap(rows.Err(), "failed iterating tasks")
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	var status string

	err := row.Scan(&t.ID, &t.UserID, &t.Sphere, &t.Difficulty, &t.Importance, &t.Text, &status,
		&t.DueDate, &t.DueTime, &t.ProjectID)
	if err != nil {
		return Task{}, err
	}

	t.Status = Status(status)
	return t, nil
}

// AddTask inserts new task at the end of the user's list
func (p *Postgres) AddTask(ctx context.Context, t Task) (Task, error) {
	if err := validateNew(&t); err != nil {
		return Task{}, err
	}

	t.ID = uuid.NewString()
	t.Status = StatusRecorded
	t.DueDate, t.DueTime = "", ""

	if _, err := p.conn.Exec(ctx, `INSERT INTO tasks(task_id, user_id, sphere, difficulty, importance, text, status, project_id, created_on)
VALUES($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`,
		t.ID, t.UserID, t.Sphere, t.Difficulty, t.Importance, t.Text, string(t.Status), t.ProjectID, p.clk.Now().UTC()); err != nil {
		return Task{}, errors.Wrap(err, "failed to add task")
	}

	return t, nil
}

func (p *Postgres) TakeTask(ctx context.Context, usr int64, id, dueDate, dueTime string) (Task, error) {
	if err := validateDue(dueDate, dueTime); err != nil {
		return Task{}, err
	}

	row := p.conn.QueryRow(ctx, `UPDATE tasks
SET status=$1, due_date=NULLIF($2, ''), due_time=NULLIF($3, '')
WHERE user_id=$4 AND task_id=$5
RETURNING `+taskColumns, string(StatusInWork), dueDate, dueTime, usr, id)

	t, err := scanTask(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Task{}, ErrTaskNotFound
	case err != nil:
		return Task{}, errors.Wrap(err, "failed taking task")
	}
	return t, nil
}

func (p *Postgres) RemoveTask(ctx context.Context, usr int64, id string) error {
	tag, err := p.conn.Exec(ctx, `DELETE FROM tasks WHERE user_id=$1 AND task_id=$2`, usr, id)
	if err != nil {
		return errors.Wrap(err, "failed removing task")
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (p *Postgres) ResolveRecipient(ctx context.Context, usr int64) (int64, bool, error) {
	var chat int64
	err := p.conn.QueryRow(ctx, `SELECT chat_id FROM recipients WHERE user_id=$1`, usr).Scan(&chat)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, errors.Wrap(err, "failed fetching recipient")
	}
	return chat, true, nil
}

// BindRecipient creates the binding or updates chat ID for the case when the bot was deleted earlier
func (p *Postgres) BindRecipient(ctx context.Context, usr, chat int64) error {
	if _, err := p.conn.Exec(ctx, `INSERT INTO recipients(user_id, chat_id) VALUES($1, $2)
ON CONFLICT (user_id) DO UPDATE SET chat_id=EXCLUDED.chat_id`, usr, chat); err != nil {
		return errors.Wrap(err, "failed binding recipient")
	}
	return nil
}

func (p *Postgres) MarkIfAbsent(ctx context.Context, key string, at time.Time) (bool, error) {
	tag, err := p.conn.Exec(ctx, `INSERT INTO ledger(key, at) VALUES($1, $2) ON CONFLICT (key) DO NOTHING`, key, at.UTC())
	if err != nil {
		return false, errors.Wrap(err, "failed marking notification")
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Prune(ctx context.Context, before time.Time) (int, error) {
	tag, err := p.conn.Exec(ctx, `DELETE FROM ledger WHERE at<$1`, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "failed pruning ledger")
	}
	return int(tag.RowsAffected()), nil
}
