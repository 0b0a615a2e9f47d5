package pavelplanner

import (
	"context"
	"time"

	"pavelplanner/bot"
	"pavelplanner/bots/PavelPlanner/db"
	"pavelplanner/bots/PavelPlanner/localtime"
	"pavelplanner/bots/PavelPlanner/reminder"
	"pavelplanner/bots/PavelPlanner/tgbot"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

type PavelPlanner struct {
	logger    *zap.SugaredLogger
	tbot      *tgbot.TBot
	reminders *reminder.Manager
	closeDB   func()
}

func (pp *PavelPlanner) Init(ctx context.Context, cfg *bot.Config, l *zap.SugaredLogger) error {
	pp.logger = l
	zone := localtime.New(clock.New(), time.Duration(cfg.Scheduler.UTCOffsetMin)*time.Minute)

	var store db.Store
	var ledger db.Ledger
	if cfg.DBConnStr == "" {
		l.Warn("no database configured; tasks and sent notifications are lost on restart")
		m := db.NewMemory()
		store, ledger = m, m
		pp.closeDB = func() {}
	} else {
		p, err := db.NewPostgres(ctx, cfg.DBConnStr)
		if err != nil {
			l.Errorw("failed to initialize database", "err", err)
			return err
		}
		store, ledger = p, p
		pp.closeDB = p.Close
	}

	b, err := tgbot.NewTBot(cfg.TgToken, cfg.SendTimeout(), store, zone, l)
	if err != nil {
		pp.closeDB()
		return err
	}
	b.RetryAttempts = cfg.RetryAttempts
	b.RetryDelay = cfg.RetryDelay()
	pp.tbot = b

	pp.reminders = reminder.NewManager(reminder.NewConfig(cfg), store, ledger, b, zone, l.Named("reminder"))

	l.Infow("planner is initialized", "zone", zone.Location().String(), "digestAt", cfg.Scheduler.DigestAt)
	return nil
}

func (pp *PavelPlanner) Run(ctx context.Context) error {
	if pp.tbot == nil {
		pp.logger.Warn("bot can't run")
		return nil
	}
	defer pp.closeDB()

	done := make(chan struct{})
	go func() {
		defer close(done)
		pp.reminders.Run(ctx)
	}()

	pp.tbot.Run(ctx)
	<-done
	return nil
}

func init() {
	bot.Register("PavelPlannerBot", &PavelPlanner{})
}
