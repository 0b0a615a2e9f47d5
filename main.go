package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pavelplanner/bot"
	_ "pavelplanner/bots/PavelPlanner"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const stopOnFailure = false

// getLogger creates a root logger; callers add the namespace
func getLogger(env string) *zap.Logger {
	var logger *zap.Logger
	if env == bot.EnvProd {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// Botfarm entry point
func main() {
	cfgFile := os.Getenv("CONFIG_FILE")
	cfg, err := bot.ReadConfig(cfgFile)
	if err != nil {
		l := getLogger(bot.EnvDev).Sugar()
		l.Fatalw("couldn't read configuration", "file", cfgFile, "err", err)
	}

	logger := getLogger(cfg.Env)
	defer logger.Sync()
	log := logger.With(zap.String("ns", "Global")).Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	started := 0
	for _, rec := range bot.GetThemAll() {
		b := rec.Bot
		l := logger.With(zap.String("ns", rec.Name)).Sugar()

		if err := b.Init(ctx, cfg, l); err != nil {
			l.Errorw("couldn't initialize bot", "err", err)
			if stopOnFailure {
				return
			}
			continue
		}

		started++
		g.Go(func() error { return b.Run(ctx) })
	}

	if started == 0 {
		log.Error("no bots are running")
		return
	}

	if err := g.Wait(); err != nil {
		log.Errorw("bot stopped with error", "err", err)
	}
	log.Info("botfarm is stopped")
}
