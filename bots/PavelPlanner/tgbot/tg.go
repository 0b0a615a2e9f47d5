package tgbot

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pavelplanner/bot"
	"pavelplanner/bots/PavelPlanner/db"
	"pavelplanner/bots/PavelPlanner/localtime"
	"pavelplanner/bots/PavelPlanner/reminder"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const numAssumedAvgTask = 100

type Stage int

const (
	stageIdle Stage = iota
	stageAdd
)

const (
	txtWelcomeMessage = "Hello, I'm Pavel, your planner. Record tasks, take them in work with a due date and time, and I'll remind you an hour before they're due and send you a summary every morning. Use /help to see what I can do"
	txtHelpMessage    = `You can send me a message to record a task or use one of these commands:
/add [sphere | difficulty 1-6 | importance 1-4 |] text - to record a new task
/list - to see your tasks
/take N [YYYY-MM-DD [HH:MM]] - to take the task in work, optionally with a due date and time
/done N - to complete the task
/del N - to delete the task
/digest - to see the summary of tasks in work`
	txtUnknownCommand              = "I don't known this command. Use /help to list commands I know"
	txtDoNotUnderstandWhatHappened = "E-mm, I don't understood what have just happened"
	txtWhatWasThatText             = "Looks like you wanted to record a task. I did it"
	txtSendMeTask                  = "Send me your task"
	txtFailedStartingBot           = "Hey, I couldn't start. Let's try again!"
	txtFailedFetchTasks            = "I'm sorry, I couldn't fetch the list of tasks"
	txtFailedAddTask               = "I failed to record the task. Please retry now or later"
	txtFailedUpdateTask            = "I failed to update the task. Please retry now or later"
	txtNoTasks                     = "You don't have any tasks at the moment. Send me one!"
	txtYourTasks                   = "Your tasks:\n"
	txtTaskCompleted               = "Well done! The task is completed"
	txtTaskDeleted                 = "The task is deleted"
	txtExpectedTaskFormat          = "I expect either a text or 'sphere | difficulty | importance | text', e.g. 'work | 2 | 3 | write the report'"
	txtExpectedTakeFormat          = "I expect the task number optionally followed by a date YYYY-MM-DD and a time HH:MM, e.g. '/take 2 2026-10-16 18:00'"

	fmtNumberInRangeExpected = "I expected a number in the range of 1-%d. Please repeat the command and enter correct value"
	fmtTaskTaken             = "Taken in work: %s"
	fmtTask                  = "[<code>%d</code>] %s\n"

	defaultSphere     = "general"
	defaultDifficulty = 1
	defaultImportance = 1
)

var (
	errUnknownFormat = errors.New("unknown format")
	errOutOfRange    = errors.New("value is out of range")
)

type state struct {
	stage Stage
}

type Command struct {
	Name string
	Len  int
}

func makeCommand(name string) *Command {
	return &Command{
		Name: name,
		Len:  len(name) + 2, // leading '/' and trailing space
	}
}

var (
	cmdStart  = makeCommand("start")
	cmdHelp   = makeCommand("help")
	cmdAdd    = makeCommand("add")
	cmdList   = makeCommand("list")
	cmdTake   = makeCommand("take")
	cmdDone   = makeCommand("done")
	cmdDel    = makeCommand("del")
	cmdDigest = makeCommand("digest")
)

// sender is the part of *tg.BotAPI used to send messages.
type sender interface {
	Request(c tg.Chattable) (*tg.APIResponse, error)
}

type TBot struct {
	Bot           *tg.BotAPI
	Store         db.Store
	Zone          *localtime.Zone
	Logger        *zap.SugaredLogger
	RetryDelay    time.Duration
	RetryAttempts int

	api    sender
	mu     sync.Mutex
	states map[int64]*state
}

// NewTBot authorizes the bot. Requests to Telegram time out after timeout.
func NewTBot(tgtoken string, timeout time.Duration, s db.Store, z *localtime.Zone, l *zap.SugaredLogger) (*TBot, error) {
	b, err := tg.NewBotAPIWithClient(tgtoken, tg.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		l.Errorw("failed to initialize Telegram Bot", "err", err)
		return nil, err
	}

	b.Debug = false

	l.Infof("authorized on account %q (%q, %d)", b.Self.FirstName, b.Self.UserName, b.Self.ID)

	t := newTBot(b, s, z, l)
	t.Bot = b
	return t, nil
}

func newTBot(api sender, s db.Store, z *localtime.Zone, l *zap.SugaredLogger) *TBot {
	return &TBot{
		Store:         s,
		Zone:          z,
		Logger:        l,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
		api:           api,
		states:        make(map[int64]*state),
	}
}

// Run receives updates until ctx is cancelled.
func (b *TBot) Run(ctx context.Context) {
	uCfg := tg.NewUpdate(0)
	uCfg.Timeout = 60

	updates := b.Bot.GetUpdatesChan(uCfg)
	go func() {
		<-ctx.Done()
		b.Bot.StopReceivingUpdates()
	}()

	for u := range updates {
		if u.Message == nil || u.Message.From == nil || u.Message.Chat == nil {
			continue
		}

		msg := u.Message
		if msg.IsCommand() {
			go b.HandleCommand(ctx, msg)
		} else {
			go b.HandleMessage(ctx, msg)
		}
	}
}

func (b *TBot) userState(usr int64) *state {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.states[usr]
	if s == nil {
		s = &state{stageIdle}
		b.states[usr] = s
	}
	return s
}

func (b *TBot) setStage(usr int64, stage Stage) {
	s := b.userState(usr)

	b.mu.Lock()
	s.stage = stage
	b.mu.Unlock()
}

func (b *TBot) stage(usr int64) Stage {
	s := b.userState(usr)

	b.mu.Lock()
	defer b.mu.Unlock()
	return s.stage
}

func (b *TBot) HandleMessage(ctx context.Context, msg *tg.Message) {
	usr, cht := msg.From.ID, msg.Chat.ID
	l := b.Logger.With("usr", usr)

	switch b.stage(usr) {
	case stageIdle:
		if msg.Text == "" {
			b.SendMessage(ctx, cht, txtDoNotUnderstandWhatHappened, msg.MessageID)
			return
		}

		if _, err := b.addTask(ctx, usr, msg.Text); err != nil {
			l.Errorw("failed adding task", "err", err)
			b.SendMessage(ctx, cht, txtFailedAddTask, msg.MessageID)
			return
		}

		b.SendMessage(ctx, cht, txtWhatWasThatText, msg.MessageID)
		b.sendTaskList(ctx, usr, cht)

	case stageAdd:
		b.setStage(usr, stageIdle)
		b.recordTask(ctx, usr, cht, msg.MessageID, msg.Text)
	}
}

func (b *TBot) HandleCommand(ctx context.Context, msg *tg.Message) {
	usr, cht := msg.From.ID, msg.Chat.ID
	l := b.Logger.With("usr", usr)

	// Commands interrupt any ongoing command
	b.setStage(usr, stageIdle)

	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case cmdStart.Name:
		if err := b.Store.BindRecipient(ctx, usr, cht); err != nil {
			l.Errorw("failed binding recipient", "err", err)
			b.SendMessage(ctx, cht, txtFailedStartingBot, msg.MessageID)
			return
		}

		l.Infow("user has started the bot", "chat", cht)
		b.SendMessage(ctx, cht, txtWelcomeMessage, -1)

	case cmdHelp.Name:
		b.SendMessage(ctx, cht, txtHelpMessage, -1)

	case cmdAdd.Name:
		if args != "" {
			b.recordTask(ctx, usr, cht, msg.MessageID, args)
			return
		}

		if b.SendMessage(ctx, cht, txtSendMeTask, -1) != nil {
			return
		}
		b.setStage(usr, stageAdd)

	case cmdList.Name:
		b.sendTaskList(ctx, usr, cht)

	case cmdTake.Name:
		b.takeTask(ctx, usr, cht, msg.MessageID, args)

	case cmdDone.Name:
		b.removeTask(ctx, usr, cht, msg.MessageID, args, txtTaskCompleted)

	case cmdDel.Name:
		b.removeTask(ctx, usr, cht, msg.MessageID, args, txtTaskDeleted)

	case cmdDigest.Name:
		tasks, err := b.Store.ListTasks(ctx, usr)
		if err != nil {
			l.Errorw("failed listing tasks", "err", err)
			b.SendMessage(ctx, cht, txtFailedFetchTasks, msg.MessageID)
			return
		}

		b.Notify(ctx, cht, reminder.RenderDigest(b.Zone.Today(), tasks))

	default:
		b.SendMessage(ctx, cht, txtUnknownCommand, msg.MessageID)
	}
}

func (b *TBot) recordTask(ctx context.Context, usr, cht int64, replyID int, txt string) {
	if _, err := b.addTask(ctx, usr, txt); err != nil {
		if errors.Is(err, errUnknownFormat) || errors.Is(err, errOutOfRange) || errors.Is(err, db.ErrInvalidTask) {
			b.SendMessage(ctx, cht, txtExpectedTaskFormat, replyID)
			return
		}

		b.Logger.Errorw("failed adding task", "usr", usr, "err", err)
		b.SendMessage(ctx, cht, txtFailedAddTask, replyID)
		return
	}

	b.sendTaskList(ctx, usr, cht)
}

func (b *TBot) addTask(ctx context.Context, usr int64, txt string) (db.Task, error) {
	t, err := parseTask(txt)
	if err != nil {
		return db.Task{}, err
	}

	t.UserID = usr
	return b.Store.AddTask(ctx, t)
}

func (b *TBot) takeTask(ctx context.Context, usr, cht int64, replyID int, args string) {
	tasks, ok := b.fetchTasks(ctx, usr, cht, replyID)
	if !ok {
		return
	}

	n, dueDate, dueTime, err := parseTake(args, len(tasks))
	switch {
	case errors.Is(err, errOutOfRange):
		b.SendMessage(ctx, cht, fmt.Sprintf(fmtNumberInRangeExpected, len(tasks)), replyID)
		return
	case err != nil:
		b.SendMessage(ctx, cht, txtExpectedTakeFormat, replyID)
		return
	}

	t, err := b.Store.TakeTask(ctx, usr, tasks[n-1].ID, dueDate, dueTime)
	if err != nil {
		b.Logger.Errorw("failed taking task", "usr", usr, "err", err)
		b.SendMessage(ctx, cht, txtFailedUpdateTask, replyID)
		return
	}

	b.SendMessage(ctx, cht, fmt.Sprintf(fmtTaskTaken, html.EscapeString(formatTask(&t))), -1)
}

func (b *TBot) removeTask(ctx context.Context, usr, cht int64, replyID int, args, done string) {
	tasks, ok := b.fetchTasks(ctx, usr, cht, replyID)
	if !ok {
		return
	}

	n, err := validateInt(args, 1, len(tasks))
	if err != nil {
		b.SendMessage(ctx, cht, fmt.Sprintf(fmtNumberInRangeExpected, len(tasks)), replyID)
		return
	}

	if err = b.Store.RemoveTask(ctx, usr, tasks[n-1].ID); err != nil {
		b.Logger.Errorw("failed removing task", "usr", usr, "err", err)
		b.SendMessage(ctx, cht, txtFailedUpdateTask, replyID)
		return
	}

	b.SendMessage(ctx, cht, done, -1)
	b.sendTaskList(ctx, usr, cht)
}

// fetchTasks returns the user's tasks; it reports to the user when there
// are none or they couldn't be fetched.
func (b *TBot) fetchTasks(ctx context.Context, usr, cht int64, replyID int) ([]db.Task, bool) {
	tasks, err := b.Store.ListTasks(ctx, usr)
	if err != nil {
		b.Logger.Errorw("failed listing tasks", "usr", usr, "err", err)
		b.SendMessage(ctx, cht, txtFailedFetchTasks, replyID)
		return nil, false
	}

	if len(tasks) == 0 {
		b.SendMessage(ctx, cht, txtNoTasks, -1)
		return nil, false
	}
	return tasks, true
}

func (b *TBot) sendTaskList(ctx context.Context, usr, cht int64) error {
	tasks, err := b.Store.ListTasks(ctx, usr)
	if err != nil {
		b.Logger.Errorw("failed listing tasks", "usr", usr, "err", err)
		return b.SendMessage(ctx, cht, txtFailedFetchTasks, -1)
	}

	var sb strings.Builder
	formatTasks(&sb, tasks)
	return b.SendMessage(ctx, cht, sb.String(), -1)
}

// Notify sends plain text to the chat. It implements reminder.Notifier.
// A failed request isn't repeated: it may have reached the chat anyway.
func (b *TBot) Notify(ctx context.Context, cht int64, txt string) error {
	return b.send(ctx, tg.NewMessage(cht, txt), 1)
}

// SendMessage sends HTML text to the chat, replying to replyTo unless it's
// negative.
func (b *TBot) SendMessage(ctx context.Context, cht int64, txt string, replyTo int) error {
	m := tg.NewMessage(cht, txt)
	if replyTo >= 0 {
		m.ReplyToMessageID = replyTo
	}
	m.ParseMode = tg.ModeHTML

	return b.send(ctx, m, b.RetryAttempts)
}

func (b *TBot) send(ctx context.Context, m tg.MessageConfig, attempts int) error {
	m.DisableWebPagePreview = true

	var err error
	bot.RobustExecute(ctx, attempts, b.RetryDelay, func() bool {
		_, err = b.api.Request(m)
		return err == nil
	})
	if err != nil {
		b.Logger.Errorw("failed sending message", "chat", m.ChatID, "err", err)
	}
	return err
}

func formatTasks(sb *strings.Builder, tasks []db.Task) {
	if len(tasks) == 0 {
		sb.WriteString(txtNoTasks)
		return
	}

	sb.Grow(len(txtYourTasks) + numAssumedAvgTask*len(tasks))
	sb.WriteString(txtYourTasks)
	for i := range tasks {
		sb.WriteString(fmt.Sprintf(fmtTask, i+1, html.EscapeString(formatTask(&tasks[i]))))
	}
}

func formatTask(t *db.Task) string {
	var sb strings.Builder
	sb.WriteString(t.Text)
	fmt.Fprintf(&sb, " (%s, difficulty %d, importance %d)", t.Sphere, t.Difficulty, t.Importance)

	if !t.InWork() {
		return sb.String()
	}

	sb.WriteString(", in work")
	if t.DueDate != "" {
		sb.WriteString(", due ")
		sb.WriteString(t.DueDate)
	}
	if t.DueTime != "" {
		sb.WriteString(" ")
		sb.WriteString(t.DueTime)
	}
	return sb.String()
}

// parseTask accepts either a text or 'sphere | difficulty | importance | text'.
func parseTask(txt string) (db.Task, error) {
	parts := strings.Split(txt, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return db.Task{}, errUnknownFormat
		}
		return db.Task{
			Sphere:     defaultSphere,
			Difficulty: defaultDifficulty,
			Importance: defaultImportance,
			Text:       parts[0],
		}, nil

	case 4:
		difficulty, err := validateInt(parts[1], db.DifficultyMin, db.DifficultyMax)
		if err != nil {
			return db.Task{}, err
		}
		importance, err := validateInt(parts[2], db.ImportanceMin, db.ImportanceMax)
		if err != nil {
			return db.Task{}, err
		}
		if parts[0] == "" || parts[3] == "" {
			return db.Task{}, errUnknownFormat
		}
		return db.Task{Sphere: parts[0], Difficulty: difficulty, Importance: importance, Text: parts[3]}, nil
	}

	return db.Task{}, errUnknownFormat
}

// parseTake parses 'N [YYYY-MM-DD [HH:MM]]' where N is in [1, max].
func parseTake(args string, max int) (n int, dueDate, dueTime string, err error) {
	fields := strings.Fields(args)
	if len(fields) < 1 || len(fields) > 3 {
		return 0, "", "", errUnknownFormat
	}

	n, err = validateInt(fields[0], 1, max)
	if err != nil {
		return 0, "", "", err
	}

	if len(fields) > 1 {
		dueDate = fields[1]
		if !localtime.ValidDate(dueDate) {
			return 0, "", "", errUnknownFormat
		}
	}
	if len(fields) > 2 {
		t, err := time.Parse(localtime.TimeLayout, fields[2])
		if err != nil {
			return 0, "", "", errUnknownFormat
		}
		dueTime = t.Format(localtime.TimeLayout)
	}

	return n, dueDate, dueTime, nil
}

func validateInt(txt string, min int, max int) (int, error) {
	val, err := strconv.Atoi(txt)
	if err != nil {
		return 0, errors.Wrap(errUnknownFormat, err.Error())
	}

	if val < min || val > max {
		return 0, errOutOfRange
	}
	return val, nil
}
