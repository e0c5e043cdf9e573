// Package telegram adapts the Telegram Bot API to the bot's platform
// contract. SDK types do not leave this package.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrInvalidRecipient = errors.New("invalid telegram recipient")

// Update types the bot subscribes to. chat_member is not delivered unless
// requested explicitly.
var allowedUpdates = []string{"message", "chat_member"}

type Client struct {
	bot       *tgbotapi.BotAPI
	channelID int64
}

func NewClient(token string, channelID int64, debug bool) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	bot.Debug = debug
	return &Client{bot: bot, channelID: channelID}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// CreateInviteLink creates a named, unlimited invite link for the channel.
func (c *Client) CreateInviteLink(ctx context.Context, ownerKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := c.bot.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: c.channelID},
		Name:       "link_user_" + ownerKey,
	})
	if err != nil {
		return "", fmt.Errorf("createChatInviteLink: %w", err)
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decoding invite link: %w", err)
	}

	slog.DebugContext(ctx, "telegram invite link created", "owner_key", ownerKey, "name", link.Name)
	return link.InviteLink, nil
}

func (c *Client) SendMessage(ctx context.Context, recipientKey, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, err := strconv.ParseInt(recipientKey, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, recipientKey)
	}

	if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

// SetWebhook registers url with Telegram.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("building webhook config: %w", err)
	}
	wh.AllowedUpdates = allowedUpdates

	if _, err := c.bot.Request(wh); err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	slog.InfoContext(ctx, "telegram webhook registered")
	return nil
}

// DeleteWebhook switches Telegram back to getUpdates delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := c.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	slog.DebugContext(ctx, "telegram webhook removed")
	return nil
}
