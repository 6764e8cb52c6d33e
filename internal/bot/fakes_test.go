package bot

import (
	"context"
	"testing"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type memBackend struct {
	data []byte
	fail error
}

func (m *memBackend) Load(context.Context) ([]byte, error) { return m.data, nil }
func (m *memBackend) Save(_ context.Context, b []byte) error {
	if m.fail != nil {
		return m.fail
	}
	m.data = append([]byte(nil), b...)
	return nil
}
func (m *memBackend) Close() error { return nil }

type sentMsg struct {
	ChatID int64
	Text   string
}

type pollCall struct {
	Offset int
	Wait   time.Duration
}

type batch struct {
	ups []kit.Update
	err error
}

// fakeClient replays scripted getUpdates batches and records sends.
type fakeClient struct {
	batches []batch
	polls   []pollCall
	sent    []sentMsg
	sendErr error
	onPoll  func()
}

func (f *fakeClient) GetUpdates(_ context.Context, offset int, wait time.Duration) ([]kit.Update, error) {
	f.polls = append(f.polls, pollCall{Offset: offset, Wait: wait})
	if f.onPoll != nil {
		f.onPoll()
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b.ups, b.err
}

func (f *fakeClient) SendMessage(_ context.Context, chatID int64, text string, _ *kit.SendOptions) error {
	f.sent = append(f.sent, sentMsg{ChatID: chatID, Text: text})
	return f.sendErr
}

func (f *fakeClient) GetMe(context.Context) (string, error) { return "remind_bot", nil }

func (f *fakeClient) texts() []string {
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.Text)
	}
	return out
}

func newStore(t *testing.T, be *memBackend) *reminder.Store {
	t.Helper()
	s, err := reminder.Open(context.Background(), be, logx.Nop())
	if err != nil {
		t.Fatalf("reminder.Open: %v", err)
	}
	return s
}

func textMsg(id int, chat int64, text string) *kit.Message {
	return &kit.Message{ID: id, ChatID: chat, FromID: chat, Text: text}
}
