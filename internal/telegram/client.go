// Package telegram provides a client for sending alert notifications via
// the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/pumpsentry/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates
// and handles bot commands. It returns immediately; the goroutine stops
// when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendAlerts sends a notification with the fired alert events.
func (c *Client) SendAlerts(alerts []models.AlertEvent) error {
	if len(alerts) == 0 {
		return nil
	}
	return c.sendMarkdownV2(formatAlerts(alerts))
}

// SendError sends a service error notification. Call this only on the
// first occurrence of a consecutive error sequence.
func (c *Client) SendError(serviceErr error) error {
	text := fmt.Sprintf("⚠️ *Service error*\n`%s`", escapeMarkdownV2(serviceErr.Error()))
	return c.sendMarkdownV2(text)
}

func kindLabel(kind models.RuleKind) string {
	switch kind {
	case models.RuleGap:
		return "⏳ Overdue gap"
	case models.RuleCluster:
		return "🔥 Cluster"
	case models.RuleThreshold:
		return "🎯 Target hit"
	}
	return string(kind)
}

// formatAlerts formats fired alerts into a Telegram MarkdownV2 message.
func formatAlerts(alerts []models.AlertEvent) string {
	var b strings.Builder
	b.WriteString("🚨 *Stream alerts*\n\n")
	for _, a := range alerts {
		b.WriteString(fmt.Sprintf("%s — %s\n",
			escapeMarkdownV2(kindLabel(a.Kind)),
			escapeMarkdownV2(a.Message),
		))
		b.WriteString(fmt.Sprintf("stream `%s` nonce `%d`\n\n",
			escapeMarkdownV2(a.StreamID),
			a.Sequence,
		))
	}
	return b.String()
}

var markdownV2Escaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdownV2(s string) string {
	return markdownV2Escaper.Replace(s)
}
