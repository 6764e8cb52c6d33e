// Package reminder holds the scheduled reminders and the per-minute
// check-and-decrement pass that drives delivery.
//
// The Store is owned by a single goroutine (the poll loop) and is not safe for
// concurrent use.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type Store struct {
	backend storage.Store
	log     logx.Logger

	owners map[int64][]Reminder
}

// Open loads the store from backend. A missing blob yields an empty store; a
// corrupt one is logged and treated as missing.
func Open(ctx context.Context, backend storage.Store, log logx.Logger) (*Store, error) {
	if backend == nil {
		return nil, storage.ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{backend: backend, log: log, owners: map[int64][]Reminder{}}

	b, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	if len(b) == 0 {
		log.Info("no saved reminders; starting empty")
		return s, nil
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		log.Warn("saved reminders unreadable; starting empty", logx.Err(err), logx.Int("bytes", len(b)))
		return s, nil
	}
	total := 0
	for owner, list := range snap.Reminders {
		kept := compact(list)
		if len(kept) == 0 {
			continue
		}
		s.owners[owner] = kept
		total += len(kept)
	}
	log.Info("reminders loaded", logx.Int("owners", len(s.owners)), logx.Int("reminders", total))
	return s, nil
}

// Add appends a reminder for owner and persists it.
//
// If source is non-zero and owner already has a reminder created by the same
// message, Add is a no-op and returns false. This makes a redelivered update
// harmless.
func (s *Store) Add(ctx context.Context, owner int64, at string, occurrences int, text string, source int) (bool, error) {
	text = strings.TrimSpace(text)
	if !ValidTime(at) || occurrences < 1 || text == "" {
		return false, ErrInvalid
	}
	prev := s.owners[owner]
	if source != 0 {
		for _, r := range prev {
			if r.Source == source {
				return false, nil
			}
		}
	}

	next := make([]Reminder, len(prev), len(prev)+1)
	copy(next, prev)
	s.owners[owner] = append(next, Reminder{Time: at, Remaining: occurrences, Text: text, Source: source})

	if err := s.persist(ctx); err != nil {
		s.restore(owner, prev)
		return false, err
	}
	return true, nil
}

// Clear removes every reminder of owner.
func (s *Store) Clear(ctx context.Context, owner int64) error {
	prev, ok := s.owners[owner]
	if !ok {
		return nil
	}
	delete(s.owners, owner)
	if err := s.persist(ctx); err != nil {
		s.restore(owner, prev)
		return err
	}
	return nil
}

// List returns owner's reminders in insertion order.
func (s *Store) List(owner int64) []Entry {
	list := s.owners[owner]
	out := make([]Entry, 0, len(list))
	for _, r := range list {
		out = append(out, Entry{Time: r.Time, Remaining: r.Remaining, Text: r.Text})
	}
	return out
}

// Owners returns the ids of every owner with at least one reminder, ascending.
func (s *Store) Owners() []int64 {
	out := make([]int64, 0, len(s.owners))
	for id := range s.owners {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Check fires every reminder scheduled at now ("HH:MM").
//
// Owners are visited in ascending id order, reminders in list order. Each
// decrement is persisted on its own; a failed write rolls that decrement back
// but the reminder still fires. Exhausted reminders are compacted away at the
// end of the pass.
func (s *Store) Check(ctx context.Context, now string) ([]Fired, error) {
	var (
		fired   []Fired
		errs    []error
		touched []int64
	)
	for _, owner := range s.Owners() {
		list := s.owners[owner]
		hit := false
		for i := range list {
			if list[i].Time != now || list[i].Remaining <= 0 {
				continue
			}
			hit = true
			fired = append(fired, Fired{Owner: owner, Text: list[i].Text})
			list[i].Remaining--
			if err := s.persist(ctx); err != nil {
				list[i].Remaining++
				errs = append(errs, fmt.Errorf("owner %d at %s: %w", owner, now, err))
			}
		}
		if hit {
			touched = append(touched, owner)
		}
	}

	removed := 0
	for _, owner := range touched {
		list := s.owners[owner]
		kept := compact(list)
		removed += len(list) - len(kept)
		if len(kept) == 0 {
			delete(s.owners, owner)
		} else {
			s.owners[owner] = kept
		}
	}
	if removed > 0 {
		if err := s.persist(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compact: %w", err))
		}
		s.log.Debug("exhausted reminders removed", logx.Int("count", removed), logx.String("at", now))
	}
	return fired, errors.Join(errs...)
}

// Marshal serializes the whole store.
func (s *Store) Marshal() ([]byte, error) {
	return json.Marshal(snapshot{Reminders: s.owners})
}

func (s *Store) persist(ctx context.Context) error {
	b, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("encode reminders: %w", err)
	}
	if err := s.backend.Save(ctx, b); err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	return nil
}

func (s *Store) restore(owner int64, prev []Reminder) {
	if len(prev) == 0 {
		delete(s.owners, owner)
		return
	}
	s.owners[owner] = prev
}

// compact returns a copy of list without exhausted reminders.
func compact(list []Reminder) []Reminder {
	out := make([]Reminder, 0, len(list))
	for _, r := range list {
		if r.Remaining > 0 {
			out = append(out, r)
		}
	}
	return out
}
