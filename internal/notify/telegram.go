package notify

import (
	"context"
	"fmt"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChatResolver finds the Telegram chat linked to a patient
type ChatResolver interface {
	TelegramChatID(ctx context.Context, patientID string) (int64, bool, error)
}

type TelegramProvider struct {
	api   *tgbotapi.BotAPI
	chats ChatResolver
}

func NewTelegramProvider(api *tgbotapi.BotAPI, chats ChatResolver) *TelegramProvider {
	return &TelegramProvider{api: api, chats: chats}
}

func (p *TelegramProvider) Send(ctx context.Context, msg Message) error {
	chatID, ok, err := p.chats.TelegramChatID(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve telegram chat: %w", err)
	}
	if !ok {
		return ErrNoRecipient
	}

	text, entities := telegramText(msg)
	out := tgbotapi.NewMessage(chatID, text)
	out.Entities = entities

	if _, err := p.api.Send(out); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

const titlePrefix = "💊 "

// telegramText renders the title in bold. Entities are used instead of a
// parse mode so titles and bodies need no escaping.
func telegramText(msg Message) (string, []tgbotapi.MessageEntity) {
	text := titlePrefix + msg.Title
	if msg.Body != "" {
		text += "\n\n" + msg.Body
	}
	if msg.Title == "" {
		return text, nil
	}
	return text, []tgbotapi.MessageEntity{{
		Type:   "bold",
		Offset: utf16Len(titlePrefix),
		Length: utf16Len(msg.Title),
	}}
}

// utf16Len counts UTF-16 code units, the unit Telegram measures entity offsets in
func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
