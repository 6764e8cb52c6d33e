// Package transport defines the narrow messaging surface the poll loop needs.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Update is one inbound update. Message is nil for update kinds without text
// (edits, callbacks, joins...).
type Update struct {
	ID      int
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Client is the explicit set of Bot API operations used by the bot.
type Client interface {
	// GetUpdates long-polls for updates with id >= offset, waiting up to wait.
	GetUpdates(ctx context.Context, offset int, wait time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, opt *SendOptions) error
	// GetMe returns the bot's own username.
	GetMe(ctx context.Context) (string, error)
}

// RateLimitError is returned when the remote side asks us to back off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}
