package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Username is the bot handle without "@". Resolved with getMe when empty.
	Username string `json:"username,omitempty"`
	// PollTimeout is a Go duration string (e.g. "30s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RequestTimeout bounds one HTTP call; it must exceed PollTimeout.
	RequestTimeout string `json:"request_timeout,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	// APIURL overrides the Bot API endpoint (self-hosted bot API server).
	APIURL string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects where reminders are persisted.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./rmd_list.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	Addr     string `json:"addr,omitempty"` // redis
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Key      string `json:"key,omitempty"`
}

type RemindersConfig struct {
	// Timezone reminder times are read in. Empty means the server's local zone.
	Timezone string `json:"timezone,omitempty"`
	// CatchUp is the longest loop stall (Go duration) whose skipped minutes are
	// still checked. "0s" disables catch-up.
	CatchUp string `json:"catch_up,omitempty"`
}
