// Package bot runs the poll-and-dispatch loop: it long-polls for updates,
// feeds them to the command interpreter and delivers due reminders once per
// wall-clock minute.
//
// Everything runs on the goroutine that calls Run; the reminder store is
// owned by it.
package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// Username is the bot's own handle, used to match "/cmd@bot".
	Username string
	// PollTimeout bounds a single getUpdates wait. Default 30s.
	PollTimeout time.Duration
	// MaxPollWait, if set, caps the getUpdates wait and the length of any
	// single sleep, so Heartbeat runs at least that often while idle.
	MaxPollWait time.Duration
	// IdleDelay is slept after an empty batch or a failed fetch. Default 200ms.
	IdleDelay time.Duration
	// CatchUp is the longest stall whose skipped minutes are still checked.
	CatchUp time.Duration
	// Location is the zone reminder times are read in. Default time.Local.
	Location *time.Location
}

type Loop struct {
	cfg    Config
	client kit.Client
	store  *reminder.Store
	cmds   *Interpreter
	log    logx.Logger

	clock  *minuteClock
	offset int
	stop   atomic.Bool

	// Heartbeat, if set, runs once per iteration, before each delivery and
	// between slices of a long sleep (systemd watchdog).
	Heartbeat func()

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, client kit.Client, store *reminder.Store, log logx.Logger) *Loop {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 200 * time.Millisecond
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		cfg:    cfg,
		client: client,
		store:  store,
		cmds:   NewInterpreter(store, client, cfg.Username, log.With(logx.String("comp", "commands"))),
		log:    log,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Stop asks Run to return after the current iteration.
func (l *Loop) Stop() { l.stop.Store(true) }

// Run loops until ctx is cancelled or Stop is called. Command, store and
// transport failures are logged and never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.clock = newMinuteClock(l.now(), l.cfg.Location, l.cfg.CatchUp)
	l.log.Info("poll loop started",
		logx.String("username", l.cfg.Username),
		logx.Duration("poll_timeout", l.cfg.PollTimeout),
		logx.String("tz", l.cfg.Location.String()),
	)
	for !l.stop.Load() {
		if ctx.Err() != nil {
			break
		}
		l.step(ctx)
	}
	l.log.Info("poll loop stopped", logx.Int("offset", l.offset))
	return nil
}

func (l *Loop) step(ctx context.Context) {
	l.beat()

	l.deliverDue(ctx)

	ups, err := l.client.GetUpdates(ctx, l.offset, l.pollWait())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var rl *kit.RateLimitError
		if errors.As(err, &rl) {
			l.log.Warn("get updates rate limited", logx.Duration("retry_after", rl.RetryAfter))
			l.pause(ctx, rl.RetryAfter)
			return
		}
		l.log.Warn("get updates failed", logx.Err(err))
		_ = l.sleep(ctx, l.cfg.IdleDelay)
		return
	}
	if len(ups) == 0 {
		_ = l.sleep(ctx, l.cfg.IdleDelay)
		return
	}

	l.offset = ups[len(ups)-1].ID + 1
	for _, up := range ups {
		if up.Message == nil {
			l.log.Trace("update skipped", logx.Int("update_id", up.ID))
			continue
		}
		l.log.Trace("dispatching update", logx.Int("update_id", up.ID), logx.Int64("chat_id", up.Message.ChatID))
		l.cmds.Handle(ctx, up.Message)
	}
}

// deliverDue checks every minute that became due and sends what fired.
func (l *Loop) deliverDue(ctx context.Context) {
	for _, minute := range l.clock.advance(l.now()) {
		fired, err := l.store.Check(ctx, minute)
		if err != nil {
			l.log.Error("reminder check not fully persisted", logx.String("at", minute), logx.Err(err))
		}
		if len(fired) > 0 {
			l.log.Info("delivering reminders", logx.String("at", minute), logx.Int("count", len(fired)))
		}
		for _, f := range fired {
			l.beat()
			if err := l.client.SendMessage(ctx, f.Owner, f.Text, replyOptions); err != nil {
				l.log.Warn("reminder delivery failed", logx.Int64("chat_id", f.Owner), logx.String("at", minute), logx.Err(err))
			}
		}
	}
}

// pollWait caps the long-poll so it returns near the next minute boundary
// and never exceeds MaxPollWait.
func (l *Loop) pollWait() time.Duration {
	wait := l.cfg.PollTimeout
	if next := l.clock.untilNext(l.now()); next < wait {
		wait = next
	}
	wait = (wait + time.Second - 1).Truncate(time.Second)
	if limit := l.cfg.MaxPollWait.Truncate(time.Second); limit > 0 && wait > limit {
		wait = limit
	}
	if wait < time.Second {
		return time.Second
	}
	return wait
}

func (l *Loop) beat() {
	if l.Heartbeat != nil {
		l.Heartbeat()
	}
}

// pause sleeps d in slices of at most MaxPollWait, beating between slices.
func (l *Loop) pause(ctx context.Context, d time.Duration) {
	for d > 0 {
		chunk := d
		if l.cfg.MaxPollWait > 0 && chunk > l.cfg.MaxPollWait {
			chunk = l.cfg.MaxPollWait
		}
		if err := l.sleep(ctx, chunk); err != nil {
			return
		}
		d -= chunk
		if d > 0 {
			l.beat()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
