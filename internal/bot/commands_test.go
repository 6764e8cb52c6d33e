package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		cmd  string
		args string
		ok   bool
	}{
		{name: "bare", text: "/help", cmd: "help", ok: true},
		{name: "args", text: "/add 08:30 7 收远征", cmd: "add", args: "08:30 7 收远征", ok: true},
		{name: "own suffix", text: "/list@remind_bot", cmd: "list", ok: true},
		{name: "other suffix", text: "/list@other_bot", ok: false},
		{name: "suffix case differs", text: "/list@Remind_bot", ok: false},
		{name: "nbsp", text: "/add\u00a008:30\u00a01 hi", cmd: "add", args: "08:30 1 hi", ok: true},
		{name: "padded", text: "  /clear  ", cmd: "clear", ok: true},
		{name: "plain text", text: "hello there", ok: false},
		{name: "slash only", text: "/", ok: false},
		{name: "empty", text: "", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, args, ok := parseCommand(tt.text, "remind_bot")
			if ok != tt.ok || cmd != tt.cmd || args != tt.args {
				t.Fatalf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.text, cmd, args, ok, tt.cmd, tt.args, tt.ok)
			}
		})
	}
}

func TestSplitArgs(t *testing.T) {
	t.Parallel()
	got := splitArgs("08:30   7  water  the plants ", 3)
	want := []string{"08:30", "7", "water  the plants"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitArgs = %q, want %q", got, want)
	}
	if got := splitArgs("08:30 7", 3); len(got) != 2 {
		t.Fatalf("splitArgs short = %q", got)
	}
	if got := splitArgs("", 3); len(got) != 0 {
		t.Fatalf("splitArgs empty = %q", got)
	}
}

func newInterpreter(t *testing.T) (*Interpreter, *fakeClient, *reminder.Store, *memBackend) {
	t.Helper()
	be := &memBackend{}
	store := newStore(t, be)
	fc := &fakeClient{}
	return NewInterpreter(store, fc, "remind_bot", logx.Nop()), fc, store, be
}

func TestAddCommand(t *testing.T) {
	t.Parallel()
	in, fc, store, _ := newInterpreter(t)
	in.Handle(context.Background(), textMsg(1, 42, "/add 08:30 7 feed the cat"))

	want := []reminder.Entry{{Time: "08:30", Remaining: 7, Text: "feed the cat"}}
	if got := store.List(42); !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %+v, want %+v", got, want)
	}
	if got := fc.texts(); len(got) != 1 || got[0] != fmt.Sprintf(addedText, 7, "08:30", "feed the cat") {
		t.Fatalf("replies = %q", got)
	}
	if fc.sent[0].ChatID != 42 {
		t.Fatalf("reply sent to %d", fc.sent[0].ChatID)
	}
}

func TestAddMalformed(t *testing.T) {
	t.Parallel()
	for _, text := range []string{
		"/add 8:30 3 hi",
		"/add 25:99 3 hi",
		"/add 08:30 three hi",
		"/add 08:30 3",
		"/add 08:30 0 hi",
		"/add",
	} {
		in, fc, store, _ := newInterpreter(t)
		in.Handle(context.Background(), textMsg(1, 42, text))
		if got := fc.texts(); len(got) != 1 || got[0] != malformedText {
			t.Fatalf("%q: replies = %q, want malformed", text, got)
		}
		if owners := store.Owners(); len(owners) != 0 {
			t.Fatalf("%q: store mutated: %v", text, owners)
		}
	}
}

func TestDuplicateAddIgnored(t *testing.T) {
	t.Parallel()
	in, fc, store, _ := newInterpreter(t)
	ctx := context.Background()
	in.Handle(ctx, textMsg(9, 42, "/add 08:30 2 hi"))
	in.Handle(ctx, textMsg(9, 42, "/add 08:30 2 hi"))
	if n := len(store.List(42)); n != 1 {
		t.Fatalf("List len = %d, want 1", n)
	}
	if n := len(fc.sent); n != 1 {
		t.Fatalf("replies = %d, want 1", n)
	}
}

func TestAddressedToOtherBotIgnored(t *testing.T) {
	t.Parallel()
	in, fc, store, _ := newInterpreter(t)
	ctx := context.Background()
	in.Handle(ctx, textMsg(1, 42, "/add@othername 08:30 7 hi"))
	in.Handle(ctx, textMsg(2, 42, "/clear@othername"))
	in.Handle(ctx, textMsg(3, 42, "/bogus@othername"))
	if len(fc.sent) != 0 {
		t.Fatalf("unexpected replies: %q", fc.texts())
	}
	if owners := store.Owners(); len(owners) != 0 {
		t.Fatalf("store mutated: %v", owners)
	}

	in.Handle(ctx, textMsg(4, 42, "/add@remind_bot 08:30 7 hi"))
	if n := len(store.List(42)); n != 1 {
		t.Fatalf("own-suffix add not applied, List len = %d", n)
	}
}

func TestListClearHelpStart(t *testing.T) {
	t.Parallel()
	in, fc, store, _ := newInterpreter(t)
	ctx := context.Background()

	in.Handle(ctx, textMsg(1, 42, "/list"))
	in.Handle(ctx, textMsg(2, 42, "/add 08:30 7 one"))
	in.Handle(ctx, textMsg(3, 42, "/add 21:15 2 two"))
	fc.sent = nil

	in.Handle(ctx, textMsg(4, 42, "/list"))
	want := []string{
		fmt.Sprintf(listEntryText, 7, "08:30", "one"),
		fmt.Sprintf(listEntryText, 2, "21:15", "two"),
	}
	if got := fc.texts(); !reflect.DeepEqual(got, want) {
		t.Fatalf("list replies = %q, want %q", got, want)
	}

	fc.sent = nil
	in.Handle(ctx, textMsg(5, 42, "/clear"))
	in.Handle(ctx, textMsg(6, 42, "/list"))
	in.Handle(ctx, textMsg(7, 42, "/start"))
	in.Handle(ctx, textMsg(8, 42, "/help"))
	in.Handle(ctx, textMsg(9, 42, "/nope"))
	in.Handle(ctx, textMsg(10, 42, "just chatting"))
	want = []string{clearedText, noDataText, helpText, malformedText}
	if got := fc.texts(); !reflect.DeepEqual(got, want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	if n := len(store.List(42)); n != 0 {
		t.Fatalf("List after clear = %d", n)
	}
}

func TestPersistFailureReplies(t *testing.T) {
	t.Parallel()
	in, fc, store, be := newInterpreter(t)
	be.fail = errors.New("read-only file system")
	in.Handle(context.Background(), textMsg(1, 42, "/add 08:30 7 hi"))
	if got := fc.texts(); len(got) != 1 || got[0] != saveFailText {
		t.Fatalf("replies = %q, want save failure", got)
	}
	if n := len(store.List(42)); n != 0 {
		t.Fatalf("failed add left %d reminders", n)
	}
}

func TestReplyFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	in, fc, store, _ := newInterpreter(t)
	fc.sendErr = errors.New("network down")
	in.Handle(context.Background(), textMsg(1, 42, "/add 08:30 7 hi"))
	if n := len(store.List(42)); n != 1 {
		t.Fatalf("add lost on reply failure, List len = %d", n)
	}
}

func TestRepliesUseBotTexts(t *testing.T) {
	t.Parallel()
	in, fc, _, _ := newInterpreter(t)
	ctx := context.Background()
	in.Handle(ctx, textMsg(1, 42, "/add 08:30 7 收远征"))
	in.Handle(ctx, textMsg(2, 42, "/list"))
	in.Handle(ctx, textMsg(3, 42, "/add 8:30 7 收远征"))
	want := []string{
		"添加成功！在接下来的7天里，每天08:30将会提醒你收远征",
		"在接下来的7天里，每天08:30将会提醒你收远征",
		"命令有误，输入 /help 获取帮助",
	}
	if got := fc.texts(); !reflect.DeepEqual(got, want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
}

func TestHandleLogsSender(t *testing.T) {
	t.Parallel()
	be := &memBackend{}
	var buf bytes.Buffer
	in := NewInterpreter(newStore(t, be), &fakeClient{}, "remind_bot", logx.NewWriter(&buf, "info"))

	msg := textMsg(1, 42, "/add 08:30 7 hi")
	msg.FromUsername = "alice"
	in.Handle(context.Background(), msg)

	out := buf.String()
	for _, want := range []string{`"from_id":42`, `"from_username":"alice"`, `"message":"reminder added"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %s missing %s", out, want)
		}
	}
}
