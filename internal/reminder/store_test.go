package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// memBackend is an in-memory storage.Store that can be told to fail.
type memBackend struct {
	data  []byte
	saves int
	fail  error
}

func (m *memBackend) Load(context.Context) ([]byte, error) { return m.data, nil }
func (m *memBackend) Save(_ context.Context, b []byte) error {
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.data = append([]byte(nil), b...)
	return nil
}
func (m *memBackend) Close() error { return nil }

func openMem(t *testing.T, be *memBackend) *Store {
	t.Helper()
	s, err := Open(context.Background(), be, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestAddThenList(t *testing.T) {
	t.Parallel()
	be := &memBackend{}
	s := openMem(t, be)

	added, err := s.Add(context.Background(), 42, "08:30", 7, "msg", 0)
	if err != nil || !added {
		t.Fatalf("Add = %v, %v", added, err)
	}
	if be.saves != 1 {
		t.Fatalf("saves = %d, want 1", be.saves)
	}
	got := s.List(42)
	want := []Entry{{Time: "08:30", Remaining: 7, Text: "msg"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %+v, want %+v", got, want)
	}
	if l := s.List(7); len(l) != 0 {
		t.Fatalf("List(unknown) = %+v, want empty", l)
	}
}

func TestAddRejectsMalformed(t *testing.T) {
	t.Parallel()
	s := openMem(t, &memBackend{})
	cases := []struct {
		name string
		at   string
		n    int
		text string
	}{
		{name: "short hour", at: "8:30", n: 3, text: "hi"},
		{name: "bad hour", at: "25:99", n: 3, text: "hi"},
		{name: "bad minute", at: "12:60", n: 3, text: "hi"},
		{name: "zero count", at: "08:30", n: 0, text: "hi"},
		{name: "negative count", at: "08:30", n: -2, text: "hi"},
		{name: "empty text", at: "08:30", n: 1, text: "  "},
	}
	for _, tc := range cases {
		if _, err := s.Add(context.Background(), 1, tc.at, tc.n, tc.text, 0); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: err = %v, want ErrInvalid", tc.name, err)
		}
	}
	if owners := s.Owners(); len(owners) != 0 {
		t.Fatalf("store mutated: %v", owners)
	}
}

func TestAddSameSourceIsNoop(t *testing.T) {
	t.Parallel()
	s := openMem(t, &memBackend{})
	ctx := context.Background()
	if added, _ := s.Add(ctx, 1, "09:00", 2, "a", 55); !added {
		t.Fatal("first add not applied")
	}
	added, err := s.Add(ctx, 1, "09:00", 2, "a", 55)
	if err != nil || added {
		t.Fatalf("duplicate Add = %v, %v; want no-op", added, err)
	}
	if n := len(s.List(1)); n != 1 {
		t.Fatalf("List len = %d, want 1", n)
	}
}

func TestCheckDecrementsOnlyMatchingTime(t *testing.T) {
	t.Parallel()
	s := openMem(t, &memBackend{})
	ctx := context.Background()
	_, _ = s.Add(ctx, 42, "08:30", 7, "msg", 0)

	fired, err := s.Check(ctx, "08:31")
	if err != nil || len(fired) != 0 {
		t.Fatalf("Check(08:31) = %+v, %v", fired, err)
	}
	if got := s.List(42)[0].Remaining; got != 7 {
		t.Fatalf("Remaining = %d after non-matching check", got)
	}

	fired, err = s.Check(ctx, "08:30")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if want := []Fired{{Owner: 42, Text: "msg"}}; !reflect.DeepEqual(fired, want) {
		t.Fatalf("Check = %+v, want %+v", fired, want)
	}
	if got := s.List(42)[0].Remaining; got != 6 {
		t.Fatalf("Remaining = %d, want 6", got)
	}
}

func TestCheckExhaustsAndRemoves(t *testing.T) {
	t.Parallel()
	be := &memBackend{}
	s := openMem(t, be)
	ctx := context.Background()
	_, _ = s.Add(ctx, 42, "08:30", 3, "msg", 0)
	_, _ = s.Add(ctx, 42, "21:00", 1, "other", 0)

	for day := 0; day < 3; day++ {
		fired, err := s.Check(ctx, "08:30")
		if err != nil || len(fired) != 1 {
			t.Fatalf("day %d: Check = %+v, %v", day, fired, err)
		}
	}
	want := []Entry{{Time: "21:00", Remaining: 1, Text: "other"}}
	if got := s.List(42); !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %+v, want %+v", got, want)
	}
	if fired, _ := s.Check(ctx, "08:30"); len(fired) != 0 {
		t.Fatalf("exhausted reminder fired again: %+v", fired)
	}

	// The persisted blob must not contain the exhausted reminder either.
	reloaded := openMem(t, &memBackend{data: be.data})
	if got := reloaded.List(42); !reflect.DeepEqual(got, want) {
		t.Fatalf("reloaded List = %+v, want %+v", got, want)
	}

	if fired, _ := s.Check(ctx, "21:00"); len(fired) != 1 {
		t.Fatalf("Check(21:00) = %+v", fired)
	}
	if owners := s.Owners(); len(owners) != 0 {
		t.Fatalf("owner without reminders kept: %v", owners)
	}
}

func TestCheckOrder(t *testing.T) {
	t.Parallel()
	s := openMem(t, &memBackend{})
	ctx := context.Background()
	_, _ = s.Add(ctx, 30, "07:00", 2, "c1", 0)
	_, _ = s.Add(ctx, 10, "07:00", 2, "a1", 0)
	_, _ = s.Add(ctx, 30, "07:00", 2, "c2", 0)
	_, _ = s.Add(ctx, 20, "07:05", 2, "b1", 0)
	_, _ = s.Add(ctx, 10, "07:00", 2, "a2", 0)

	fired, err := s.Check(ctx, "07:00")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	want := []Fired{{10, "a1"}, {10, "a2"}, {30, "c1"}, {30, "c2"}}
	if !reflect.DeepEqual(fired, want) {
		t.Fatalf("Check order = %+v, want %+v", fired, want)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()
	be := &memBackend{}
	s := openMem(t, be)
	ctx := context.Background()

	if err := s.Clear(ctx, 5); err != nil {
		t.Fatalf("Clear(empty): %v", err)
	}
	_, _ = s.Add(ctx, 5, "10:00", 1, "x", 0)
	_, _ = s.Add(ctx, 5, "11:00", 1, "y", 0)
	for i := 0; i < 2; i++ {
		if err := s.Clear(ctx, 5); err != nil {
			t.Fatalf("Clear #%d: %v", i, err)
		}
		if l := s.List(5); len(l) != 0 {
			t.Fatalf("List after Clear = %+v", l)
		}
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	t.Parallel()
	be := &memBackend{}
	s := openMem(t, be)
	ctx := context.Background()
	_, _ = s.Add(ctx, 1, "06:00", 2, "keep", 0)

	be.fail = errors.New("disk full")
	if _, err := s.Add(ctx, 1, "07:00", 1, "lost", 0); err == nil {
		t.Fatal("Add succeeded with failing backend")
	}
	if err := s.Clear(ctx, 1); err == nil {
		t.Fatal("Clear succeeded with failing backend")
	}
	fired, err := s.Check(ctx, "06:00")
	if err == nil {
		t.Fatal("Check reported no error with failing backend")
	}
	if len(fired) != 1 {
		t.Fatalf("reminder not delivered on persist failure: %+v", fired)
	}
	want := []Entry{{Time: "06:00", Remaining: 2, Text: "keep"}}
	if got := s.List(1); !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %+v, want %+v", got, want)
	}
}

func TestCorruptBlobLoadsEmpty(t *testing.T) {
	t.Parallel()
	s := openMem(t, &memBackend{data: []byte("\x80\x04}q\x00.")})
	if owners := s.Owners(); len(owners) != 0 {
		t.Fatalf("Owners = %v, want none", owners)
	}
}

func TestRoundTripThroughFileBackend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rmd_list.json")
	be, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	ctx := context.Background()
	s, err := Open(ctx, be, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, _ = s.Add(ctx, -100123, "08:30", 7, "收远征", 0)
	_, _ = s.Add(ctx, 9, "23:59", 1, "*bold* text", 3)
	_, _ = s.Add(ctx, -100123, "00:00", 2, "midnight", 0)

	before := map[int64][]Entry{}
	for _, o := range s.Owners() {
		before[o] = s.List(o)
	}

	be2, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	s2, err := Open(ctx, be2, logx.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	after := map[int64][]Entry{}
	for _, o := range s2.Owners() {
		after[o] = s2.List(o)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip mismatch:\n before=%+v\n after=%+v", before, after)
	}
}

func TestLoadDropsExhausted(t *testing.T) {
	t.Parallel()
	be := &memBackend{data: []byte(`{"reminders":{"1":[{"time":"08:00","remaining":0,"text":"gone"},{"time":"09:00","remaining":1,"text":"ok"}],"2":[{"time":"10:00","remaining":-1,"text":"gone"}]}}`)}
	s := openMem(t, be)
	if owners := s.Owners(); !reflect.DeepEqual(owners, []int64{1}) {
		t.Fatalf("Owners = %v, want [1]", owners)
	}
	if l := s.List(1); len(l) != 1 || l[0].Text != "ok" {
		t.Fatalf("List = %+v", l)
	}
}
