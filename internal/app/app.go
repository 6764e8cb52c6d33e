// Package app wires config, logging, storage, the Telegram adapter and the
// poll loop into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

const getMeTimeout = 30 * time.Second

type App struct {
	cfgm    *config.ConfigManager
	verbose bool

	logs *logx.Service
	log  logx.Logger

	backend   storage.Store
	reminders *reminder.Store
	client    *telegram.Adapter
	loop      *bot.Loop
	sd        *sdNotifier

	shutdownTimeout time.Duration
}

// New loads cfgPath and builds every component. verbose forces debug logging.
// The bot username is resolved with getMe when the config leaves it empty.
func New(ctx context.Context, cfgPath string, verbose bool) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, root := logx.New(mapLogConfig(cfg, verbose))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, verbose: verbose, logs: logs, log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.backend, err = storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.reminders, err = reminder.Open(ctx, a.backend, root.With(logx.String("comp", "reminders")))
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}

	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	lc, err := mapLoopConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.sd = newSdNotifier(root.With(logx.String("comp", "systemd")))
	if !fitWatchdog(a.sd.interval, &tc, &lc) {
		log.Warn("a failing send can outlast the systemd watchdog; raise WatchdogSec or lower telegram.request_timeout",
			logx.Duration("watchdog", a.sd.interval),
			logx.Duration("request_timeout", tc.RequestTimeout),
		)
	}
	a.client, err = telegram.New(tc, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(cfg.Telegram.Username)
	if username == "" {
		meCtx, cancel := context.WithTimeout(ctx, getMeTimeout)
		username, err = a.client.GetMe(meCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("resolve bot username: %w", err)
		}
	}

	lc.Username = username
	a.loop = bot.New(lc, a.client, a.reminders, root.With(logx.String("comp", "loop")))
	a.loop.Heartbeat = a.sd.heartbeat
	a.shutdownTimeout = 10 * time.Second

	log.Info("remindbot initialized",
		logx.String("config", cfgm.Path()),
		logx.String("username", username),
		logx.String("storage", sc.Driver),
		logx.Int("owners", len(a.reminders.Owners())),
	)
	ok = true
	return a, nil
}

// Run blocks until ctx is cancelled or the poll loop ends, then waits for
// the background goroutines to exit.
func (a *App) Run(ctx context.Context) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	updates := a.cfgm.Subscribe(4)
	sup.Go0("config.watch", func(c context.Context) { _ = a.cfgm.Watch(c) })
	sup.Go0("config.reload", func(c context.Context) { a.applyReloads(c, updates) })
	sup.Go("poll.loop", func(c context.Context) error {
		// The app has nothing left to do once the loop ends.
		defer sup.Cancel()
		return a.loop.Run(c)
	})

	a.sd.ready()
	a.log.Info("remindbot running")

	<-sup.Context().Done()
	a.sd.stopping()
	a.loop.Stop()
	a.log.Info("remindbot stopping")

	// In-flight Bot API calls are bound to the cancelled context and return
	// promptly.
	stopCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	err := sup.Stop(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("shutdown timed out; goroutines still running", logx.Int64("active", sup.Active()))
		return err
	}
	a.cfgm.Unsubscribe(updates)
	return err
}

// applyReloads hot-applies logging changes and warns about everything else.
func (a *App) applyReloads(ctx context.Context, updates <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-updates:
			if !ok {
				return
			}
			changed, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(changed) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
			a.log.Info("config changed", fields...)

			a.logs.Apply(mapLogConfig(newCfg, a.verbose))
			if config.RestartRequired(changed) {
				a.log.Warn("config change needs a restart to take effect", logx.String("changed", strings.Join(changed, ",")))
			}
		}
	}
}

// Close releases storage and log sinks.
func (a *App) Close() error {
	var errs []error
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
