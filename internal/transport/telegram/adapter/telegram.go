// Package adapter implements transport.Client on top of telebot.
//
// The bot runs offline (no built-in poller); getUpdates and getMe go through
// Bot.Raw so the caller owns the update cursor, and messages go through
// Bot.Send.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token string
	// URL overrides the Bot API base URL (tests point it at httptest).
	URL string

	RequestTimeout time.Duration // default 45s; must exceed the poll wait
	// PollSlack is how long a getUpdates call may run past its wait. Default 15s.
	PollSlack time.Duration
	RatePerSec     int           // outbound messages per second; default 25
	Attempts       int           // default 3
	Backoff        time.Duration // linear: attempt*Backoff; default 2s
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	// calls serializes Bot API requests so tr knows which context to apply.
	calls sync.Mutex
	tr    *callTransport

	sleep func(ctx context.Context, d time.Duration) error
}

var _ kit.Client = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 45 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.PollSlack <= 0 {
		cfg.PollSlack = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	tr := &callTransport{base: http.DefaultTransport}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		Offline: true,
		Client:  &http.Client{Timeout: cfg.RequestTimeout, Transport: tr},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		tr:      tr,
		sleep:   sleepCtx,
	}, nil
}

func (a *Adapter) GetUpdates(ctx context.Context, offset int, wait time.Duration) ([]kit.Update, error) {
	secs := int(wait.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	params := map[string]any{
		"timeout":         secs,
		"allowed_updates": []string{"message"},
	}
	if offset > 0 {
		params["offset"] = offset
	}

	// A failed poll is not retried here; the caller polls again anyway.
	pollCtx, cancel := context.WithTimeout(ctx, wait+a.cfg.PollSlack)
	defer cancel()

	var resp struct {
		Result []tele.Update `json:"result"`
	}
	err := a.raw(pollCtx, func() error {
		data, err := a.bot.Raw("getUpdates", params)
		if err != nil {
			return translate(err)
		}
		return json.Unmarshal(data, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	out := make([]kit.Update, 0, len(resp.Result))
	for _, u := range resp.Result {
		up := kit.Update{ID: u.ID}
		if m := u.Message; m != nil && m.Chat != nil && m.Text != "" {
			msg := &kit.Message{ID: m.ID, ChatID: m.Chat.ID, Text: m.Text}
			if m.Sender != nil {
				msg.FromID = m.Sender.ID
				msg.FromUsername = m.Sender.Username
			}
			up.Message = msg
		}
		out = append(out, up)
	}
	return out, nil
}

func (a *Adapter) GetMe(ctx context.Context) (string, error) {
	var resp struct {
		Result tele.User `json:"result"`
	}
	err := a.retry(ctx, "getMe", true, func() error {
		return a.raw(ctx, func() error {
			data, err := a.bot.Raw("getMe", map[string]any{})
			if err != nil {
				return translate(err)
			}
			return json.Unmarshal(data, &resp)
		})
	})
	if err != nil {
		return "", err
	}
	if resp.Result.Username == "" {
		return "", errors.New("telegram getMe: empty username")
	}
	return resp.Result.Username, nil
}

func (a *Adapter) SendMessage(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitTelegramText(text, telegramTextLimit) {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		mode := opt.ParseMode
		err := a.retry(ctx, "sendMessage", true, func() error {
			return a.raw(ctx, func() error {
				_, err := a.bot.Send(chat, chunk, &tele.SendOptions{
					ParseMode:             tele.ParseMode(mode),
					DisableWebPagePreview: opt.DisablePreview,
				})
				if err != nil && mode != "" && isEntityParseError(err) {
					// User text with unbalanced markup: deliver it verbatim instead.
					a.log.Debug("markup rejected; resending as plain text", logx.Int64("chat_id", chatID))
					mode = ""
					_, err = a.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: opt.DisablePreview})
				}
				return translate(err)
			})
		})
		if err != nil {
			return fmt.Errorf("send to %d: %w", chatID, err)
		}
	}
	return nil
}

// retry runs fn up to cfg.Attempts times with linear backoff. Only transport
// failures are retried; API errors are returned as-is. Rate-limit errors are
// waited out when waitFlood is set and returned to the caller otherwise.
func (a *Adapter) retry(ctx context.Context, op string, waitFlood bool, fn func() error) error {
	var err error
	for attempt := 1; attempt <= a.cfg.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		wait := time.Duration(attempt) * a.cfg.Backoff
		var rl *kit.RateLimitError
		switch {
		case errors.As(err, &rl):
			if !waitFlood {
				return err
			}
			wait = rl.RetryAfter
		case !retryable(err):
			return err
		}
		if attempt == a.cfg.Attempts {
			break
		}
		a.log.Debug("telegram call failed; retrying",
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Duration("wait", wait),
			logx.Err(err),
		)
		if serr := a.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return err
}

// raw runs one telebot call with its HTTP requests bound to ctx.
func (a *Adapter) raw(ctx context.Context, fn func() error) error {
	a.calls.Lock()
	defer a.calls.Unlock()
	a.tr.bind(ctx)
	defer a.tr.bind(nil)
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// callTransport attaches the context of the current adapter call to each
// request; telebot builds its requests on context.Background.
type callTransport struct {
	base http.RoundTripper

	mu  sync.Mutex
	ctx context.Context
}

func (t *callTransport) bind(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	callCtx := t.ctx
	t.mu.Unlock()
	if callCtx == nil {
		return t.base.RoundTrip(req)
	}

	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(callCtx, cancel)
	release := func() {
		stop()
		cancel()
	}
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releaseBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

type releaseBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releaseBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return &kit.RateLimitError{RetryAfter: time.Duration(fe.RetryAfter) * time.Second}
	}
	return err
}

func retryable(err error) bool {
	var (
		netErr net.Error
		urlErr *url.Error
		synErr *json.SyntaxError
	)
	return errors.As(err, &netErr) ||
		errors.As(err, &urlErr) ||
		errors.As(err, &synErr) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func isEntityParseError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks Telegram accepts,
// preferring newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
