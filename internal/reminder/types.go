package reminder

import (
	"errors"
	"regexp"
)

// ErrInvalid is returned for malformed add arguments.
var ErrInvalid = errors.New("invalid reminder")

// TimeLayout is the wall-clock format reminders are keyed by.
const TimeLayout = "15:04"

var reTimeOfDay = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidTime reports whether s is a zero-padded 24h "HH:MM".
func ValidTime(s string) bool { return reTimeOfDay.MatchString(s) }

// Reminder is one recurring notification owned by a chat.
type Reminder struct {
	Time      string `json:"time"`
	Remaining int    `json:"remaining"`
	Text      string `json:"text"`

	// Source is the message id of the /add that created it (0 if unknown).
	Source int `json:"source,omitempty"`
}

// Entry is the read-only view returned by List.
type Entry struct {
	Time      string
	Remaining int
	Text      string
}

// Fired is one delivery produced by Check.
type Fired struct {
	Owner int64
	Text  string
}

// snapshot is the persisted form of the store.
type snapshot struct {
	Reminders map[int64][]Reminder `json:"reminders"`
}
