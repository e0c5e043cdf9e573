package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"refledger.app/bot/internal/model"
)

var commands = map[string]model.CommandName{
	"start":      model.CommandStart,
	"status":     model.CommandStatus,
	"reactivate": model.CommandReactivate,
}

// Translate maps a Telegram update onto the bot's update model. It reports
// false for updates the bot does not act on: group messages, unknown
// commands and member changes in chats other than channelID.
func Translate(u tgbotapi.Update, channelID int64) (model.Update, bool) {
	out := model.Update{UpdateID: int64(u.UpdateID)}

	switch {
	case u.Message != nil:
		cmd, ok := translateCommand(u.Message)
		if !ok {
			return model.Update{}, false
		}
		out.ChatID = u.Message.Chat.ID
		out.Command = cmd
		return out, true

	case u.ChatMember != nil:
		cm := u.ChatMember
		if cm.Chat.ID != channelID || cm.NewChatMember.User == nil {
			return model.Update{}, false
		}
		event := &model.MembershipEvent{
			InviteeKey: strconv.FormatInt(cm.NewChatMember.User.ID, 10),
			Status:     model.ParseMemberStatus(cm.NewChatMember.Status),
		}
		if cm.InviteLink != nil {
			event.InviteLink = cm.InviteLink.InviteLink
		}
		out.ChatID = cm.Chat.ID
		out.Membership = event
		return out, true
	}

	return model.Update{}, false
}

// Decode parses a webhook body and translates it.
func Decode(body []byte, channelID int64) (model.Update, bool, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return model.Update{}, false, fmt.Errorf("decoding telegram update: %w", err)
	}
	out, ok := Translate(u, channelID)
	return out, ok, nil
}

func translateCommand(msg *tgbotapi.Message) (*model.Command, bool) {
	if msg.Chat == nil || !msg.Chat.IsPrivate() || msg.From == nil || !msg.IsCommand() {
		return nil, false
	}
	name, ok := commands[strings.ToLower(msg.Command())]
	if !ok {
		return nil, false
	}
	return &model.Command{
		Name:      name,
		Args:      strings.TrimSpace(msg.CommandArguments()),
		SenderKey: strconv.FormatInt(msg.From.ID, 10),
		ChatKey:   strconv.FormatInt(msg.Chat.ID, 10),
	}, true
}
