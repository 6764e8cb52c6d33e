package bot

import (
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/reminder"
)

// everyMinute fires on each wall-clock minute boundary.
var everyMinute = mustParseStandard("* * * * *")

func mustParseStandard(spec string) cron.Schedule {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// minuteClock turns wall-clock readings into the "HH:MM" minutes that became
// due since the previous reading.
type minuteClock struct {
	loc     *time.Location
	catchUp time.Duration
	last    time.Time
}

func newMinuteClock(now time.Time, loc *time.Location, catchUp time.Duration) *minuteClock {
	if loc == nil {
		loc = time.Local
	}
	c := &minuteClock{loc: loc, catchUp: catchUp}
	c.last = c.minute(now)
	return c
}

func (c *minuteClock) minute(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, c.loc)
}

// advance returns the minutes to check, oldest first. Gaps up to catchUp are
// replayed minute by minute; longer gaps and backward jumps only yield the
// current minute.
func (c *minuteClock) advance(now time.Time) []string {
	cur := c.minute(now)
	if cur.Equal(c.last) {
		return nil
	}
	prev := c.last
	c.last = cur

	gap := cur.Sub(prev)
	if gap <= time.Minute || gap > c.catchUp {
		return []string{cur.Format(reminder.TimeLayout)}
	}
	var out []string
	for t := everyMinute.Next(prev); !t.After(cur); t = everyMinute.Next(t) {
		out = append(out, t.Format(reminder.TimeLayout))
	}
	return out
}

// untilNext is the time left before the next minute boundary.
func (c *minuteClock) untilNext(now time.Time) time.Duration {
	now = now.In(c.loc)
	return everyMinute.Next(now).Sub(now)
}
