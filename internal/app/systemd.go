package app

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/bot"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

// sdNotifier reports service state to systemd. Outside a Type=notify unit
// every call is a no-op.
type sdNotifier struct {
	log      logx.Logger
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newSdNotifier(log logx.Logger) *sdNotifier {
	n := &sdNotifier{log: log, now: time.Now}
	iv, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog config invalid; watchdog disabled", logx.Err(err))
		return n
	}
	n.interval = iv
	if iv > 0 {
		log.Debug("systemd watchdog enabled", logx.Duration("interval", iv))
	}
	return n
}

func (n *sdNotifier) notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}

func (n *sdNotifier) ready()    { n.notify(daemon.SdNotifyReady) }
func (n *sdNotifier) stopping() { n.notify(daemon.SdNotifyStopping) }

// heartbeat pings the watchdog at most four times per interval. It runs on
// the poll loop goroutine, so a stuck loop stops the pings.
func (n *sdNotifier) heartbeat() {
	if n.interval <= 0 {
		return
	}
	now := n.now()
	if !n.last.IsZero() && now.Sub(n.last) < n.interval/4 {
		return
	}
	n.last = now
	n.notify(daemon.SdNotifyWatchdog)
}

// fitWatchdog bounds a poll (wait plus overrun) to half the watchdog interval
// and reports whether a send with all its retries also fits in that half.
func fitWatchdog(interval time.Duration, tc *telegram.Config, lc *bot.Config) bool {
	if interval <= 0 {
		return true
	}
	quarter := interval / 4
	lc.MaxPollWait = quarter
	tc.PollSlack = quarter

	attempts := tc.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := tc.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	worst := time.Duration(attempts) * tc.RequestTimeout
	for i := 1; i < attempts; i++ {
		worst += time.Duration(i) * backoff
	}
	return worst <= interval/2
}
