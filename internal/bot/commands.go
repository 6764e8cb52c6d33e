package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"unicode"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	helpText = `输入 /add 小时:分钟 重复天数 待办事项 来设置一个提醒
 例如： /add 08:30 7 收远征
 /clear 可以清除记录
 /list 可以列出已设置的记录`
	addedText     = "添加成功！在接下来的%d天里，每天%s将会提醒你%s"
	clearedText   = "已清除全部记录"
	noDataText    = "无可奉告"
	listEntryText = "在接下来的%d天里，每天%s将会提醒你%s"
	malformedText = "命令有误，输入 /help 获取帮助"
	saveFailText  = "保存失败，请稍后再试"
)

// replyOptions matches how reminders have always been rendered.
var replyOptions = &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true}

// Interpreter turns inbound chat messages into store mutations and replies.
type Interpreter struct {
	store    *reminder.Store
	client   kit.Client
	username string
	log      logx.Logger
}

func NewInterpreter(store *reminder.Store, client kit.Client, username string, log logx.Logger) *Interpreter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Interpreter{store: store, client: client, username: username, log: log}
}

// Handle runs one message. It never panics and never returns an error: every
// failure is either replied to the user or logged.
func (in *Interpreter) Handle(ctx context.Context, msg *kit.Message) {
	if msg == nil {
		return
	}
	cmd, args, ok := parseCommand(msg.Text, in.username)
	if !ok {
		return
	}
	log := in.log.With(
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("from_username", msg.FromUsername),
		logx.Int("msg_id", msg.ID),
		logx.String("cmd", cmd),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic recovered", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	switch cmd {
	case "help":
		in.reply(ctx, log, msg.ChatID, helpText)
	case "add":
		in.add(ctx, log, msg, args)
	case "clear":
		if err := in.store.Clear(ctx, msg.ChatID); err != nil {
			log.Error("clear failed", logx.Err(err))
			in.reply(ctx, log, msg.ChatID, saveFailText)
			return
		}
		log.Info("reminders cleared")
		in.reply(ctx, log, msg.ChatID, clearedText)
	case "list":
		entries := in.store.List(msg.ChatID)
		if len(entries) == 0 {
			in.reply(ctx, log, msg.ChatID, noDataText)
			return
		}
		for _, e := range entries {
			in.reply(ctx, log, msg.ChatID, fmt.Sprintf(listEntryText, e.Remaining, e.Time, e.Text))
		}
	case "start":
	default:
		log.Debug("unknown command")
		in.reply(ctx, log, msg.ChatID, malformedText)
	}
}

func (in *Interpreter) add(ctx context.Context, log logx.Logger, msg *kit.Message, args string) {
	parts := splitArgs(args, 3)
	if len(parts) != 3 || !reminder.ValidTime(parts[0]) {
		in.reply(ctx, log, msg.ChatID, malformedText)
		return
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		in.reply(ctx, log, msg.ChatID, malformedText)
		return
	}

	added, err := in.store.Add(ctx, msg.ChatID, parts[0], n, parts[2], msg.ID)
	switch {
	case errors.Is(err, reminder.ErrInvalid):
		in.reply(ctx, log, msg.ChatID, malformedText)
		return
	case err != nil:
		log.Error("add failed", logx.Err(err))
		in.reply(ctx, log, msg.ChatID, saveFailText)
		return
	case !added:
		log.Info("duplicate add ignored")
		return
	}
	log.Info("reminder added", logx.String("at", parts[0]), logx.Int("days", n))
	in.reply(ctx, log, msg.ChatID, fmt.Sprintf(addedText, n, parts[0], strings.TrimSpace(parts[2])))
}

func (in *Interpreter) reply(ctx context.Context, log logx.Logger, chatID int64, text string) {
	if err := in.client.SendMessage(ctx, chatID, text, replyOptions); err != nil {
		log.Warn("reply failed", logx.Err(err))
	}
}

// parseCommand extracts "/name" and its argument string from text.
//
// A "/name@bot" suffix must equal username exactly, otherwise the command is
// meant for another bot and ok is false. Text that does not start with a
// command token is not a command.
func parseCommand(text, username string) (name, args string, ok bool) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
	head := text
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head = text[:i]
		args = strings.TrimLeftFunc(text[i:], unicode.IsSpace)
	}
	if i := strings.LastIndexByte(head, '@'); i >= 0 {
		if head[i+1:] != username {
			return "", "", false
		}
		head = head[:i]
	}
	if len(head) < 2 || head[0] != '/' {
		return "", "", false
	}
	return head[1:], args, true
}

// splitArgs splits s on whitespace into at most n parts; the last part keeps
// its inner spacing.
func splitArgs(s string, n int) []string {
	var out []string
	s = strings.TrimSpace(s)
	for s != "" && len(out) < n-1 {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}
		out = append(out, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
