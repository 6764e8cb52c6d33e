package config

import (
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging (never tokens or passwords).
//
// Only "logging" can be applied at runtime; any other section needs a
// restart, which RestartRequired reports.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token) ||
		ot.Username != nt.Username ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.RequestTimeout) != strings.TrimSpace(nt.RequestTimeout) ||
		ot.RatePerSec != nt.RatePerSec ||
		strings.TrimSpace(ot.APIURL) != strings.TrimSpace(nt.APIURL) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)),
			logx.String("telegram.username", nt.Username),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.rate_per_sec", nt.RatePerSec),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
			logx.String("storage.addr", newCfg.Storage.Addr),
		)
	}

	if oldCfg.Reminders != newCfg.Reminders {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.timezone", newCfg.Reminders.Timezone),
			logx.String("reminders.catch_up", newCfg.Reminders.CatchUp),
		)
	}

	return changed, attrs
}

// RestartRequired reports whether any changed section cannot be hot-applied.
func RestartRequired(changed []string) bool {
	for _, s := range changed {
		if s != "logging" {
			return true
		}
	}
	return false
}
