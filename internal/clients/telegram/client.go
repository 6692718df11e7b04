package telegram

import (
	"adtel/internal/observability"
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrNoFile is returned when a file send is requested without any usable ref.
var ErrNoFile = errors.New("no file reference")

// Bot implements Client over the Bot API.
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *observability.Logger
}

// NewBot constructs a bot handle for one token.
func NewBot(token string, logger *observability.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot api: %w", err)
	}
	return &Bot{api: api, logger: logger}, nil
}

// Username returns the bot's own username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// ParseUpdate reduces a raw Bot API update to the dispatchable form.
func ParseUpdate(raw tgbotapi.Update) (Update, bool) {
	switch {
	case raw.CallbackQuery != nil:
		cb := raw.CallbackQuery
		u := Update{
			UpdateID:     raw.UpdateID,
			FromID:       cb.From.ID,
			FromUsername: cb.From.UserName,
			FromName:     cb.From.FirstName,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}
		if cb.Message != nil {
			u.ChatID = cb.Message.Chat.ID
			u.MessageID = cb.Message.MessageID
		}
		return u, true
	case raw.Message != nil:
		msg := raw.Message
		u := Update{
			UpdateID:     raw.UpdateID,
			FromID:       msg.From.ID,
			FromUsername: msg.From.UserName,
			FromName:     msg.From.FirstName,
			ChatID:       msg.Chat.ID,
			MessageID:    msg.MessageID,
			Text:         msg.Text,
		}
		if len(msg.Photo) > 0 {
			// Largest size is last.
			u.PhotoFileID = msg.Photo[len(msg.Photo)-1].FileID
			if u.Text == "" {
				u.Text = msg.Caption
			}
		}
		if msg.Sticker != nil {
			u.StickerFileID = msg.Sticker.FileID
		}
		return u, true
	default:
		return Update{}, false
	}
}

func toMarkup(keyboard Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			switch {
			case b.CallbackData != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
			default:
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			}
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func toReplyMarkup(rows [][]string) *tgbotapi.ReplyKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, text := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(text))
		}
		keyboard = append(keyboard, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(keyboard...)
	markup.ResizeKeyboard = true
	return &markup
}

// SendText posts a plain text message.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = opts.ParseMode
	msg.DisableWebPagePreview = opts.DisableWebPagePreview
	switch {
	case len(opts.Keyboard) > 0:
		msg.ReplyMarkup = toMarkup(opts.Keyboard)
	case len(opts.ReplyButtons) > 0:
		msg.ReplyMarkup = toReplyMarkup(opts.ReplyButtons)
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Error(ctx, "failed to send text message", err)
		return Message{}, fmt.Errorf("failed to send text message: %w", err)
	}
	return Message{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func fileData(file FileRef) (tgbotapi.RequestFileData, error) {
	switch {
	case file.TelegramFileID != "":
		return tgbotapi.FileID(file.TelegramFileID), nil
	case file.URL != "":
		return tgbotapi.FileURL(file.URL), nil
	default:
		return nil, ErrNoFile
	}
}

// SendFile posts a message with an attachment, branching on the file type.
// The returned SentFile carries the platform-assigned handle so callers can
// cache it and skip the next upload.
func (b *Bot) SendFile(ctx context.Context, chatID int64, fileType string, file FileRef, caption string, opts SendOptions) (Message, SentFile, error) {
	data, err := fileData(file)
	if err != nil {
		return Message{}, SentFile{}, err
	}

	var chattable tgbotapi.Chattable
	markup := toMarkup(opts.Keyboard)
	switch fileType {
	case "photo":
		msg := tgbotapi.NewPhoto(chatID, data)
		msg.Caption = caption
		msg.ParseMode = opts.ParseMode
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		chattable = msg
	case "video":
		msg := tgbotapi.NewVideo(chatID, data)
		msg.Caption = caption
		msg.ParseMode = opts.ParseMode
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		chattable = msg
	case "audio":
		msg := tgbotapi.NewAudio(chatID, data)
		msg.Caption = caption
		msg.ParseMode = opts.ParseMode
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		chattable = msg
	case "document":
		msg := tgbotapi.NewDocument(chatID, data)
		msg.Caption = caption
		msg.ParseMode = opts.ParseMode
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		chattable = msg
	case "sticker":
		msg := tgbotapi.NewSticker(chatID, data)
		if markup != nil {
			msg.ReplyMarkup = markup
		}
		chattable = msg
	default:
		return Message{}, SentFile{}, fmt.Errorf("unsupported file type %q", fileType)
	}

	sent, err := b.api.Send(chattable)
	if err != nil {
		b.logger.Error(ctx, "failed to send file message", err)
		return Message{}, SentFile{}, fmt.Errorf("failed to send file message: %w", err)
	}
	return Message{ChatID: chatID, MessageID: sent.MessageID}, sentFileID(sent), nil
}

func sentFileID(msg tgbotapi.Message) SentFile {
	switch {
	case len(msg.Photo) > 0:
		return SentFile{FileID: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Video != nil:
		return SentFile{FileID: msg.Video.FileID}
	case msg.Audio != nil:
		return SentFile{FileID: msg.Audio.FileID}
	case msg.Document != nil:
		return SentFile{FileID: msg.Document.FileID}
	case msg.Sticker != nil:
		return SentFile{FileID: msg.Sticker.FileID}
	default:
		return SentFile{}
	}
}

// ForwardMessage forwards an existing message into another chat.
func (b *Bot) ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (Message, error) {
	sent, err := b.api.Send(tgbotapi.NewForward(toChatID, fromChatID, messageID))
	if err != nil {
		b.logger.Error(ctx, "failed to forward message", err)
		return Message{}, fmt.Errorf("failed to forward message: %w", err)
	}
	return Message{ChatID: toChatID, MessageID: sent.MessageID}, nil
}

// EditCaption rewrites the caption (and optionally the keyboard) of an
// existing file message.
func (b *Bot) EditCaption(ctx context.Context, chatID int64, messageID int, caption string, keyboard Keyboard) error {
	edit := tgbotapi.NewEditMessageCaption(chatID, messageID, caption)
	if markup := toMarkup(keyboard); markup != nil {
		edit.ReplyMarkup = markup
	}
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Error(ctx, "failed to edit caption", err)
		return fmt.Errorf("failed to edit caption: %w", err)
	}
	return nil
}

// EditReplyMarkup replaces the inline keyboard of an existing message.
func (b *Bot) EditReplyMarkup(ctx context.Context, chatID int64, messageID int, keyboard Keyboard) error {
	markup := toMarkup(keyboard)
	if markup == nil {
		markup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, *markup)
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Error(ctx, "failed to edit reply markup", err)
		return fmt.Errorf("failed to edit reply markup: %w", err)
	}
	return nil
}

// DeleteMessage removes a message.
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Error(ctx, "failed to delete message", err)
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback button press with ephemeral text.
func (b *Bot) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Error(ctx, "failed to answer callback", err)
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// FileURL resolves a file id to a downloadable URL.
func (b *Bot) FileURL(ctx context.Context, fileID string) (string, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		b.logger.Error(ctx, "failed to resolve file url", err)
		return "", fmt.Errorf("failed to resolve file url: %w", err)
	}
	return url, nil
}

// ChatInfo resolves a public channel tag (with or without the leading @)
// to its chat record, including current member count.
func (b *Bot) ChatInfo(ctx context.Context, username string) (Chat, error) {
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}
	chat, err := b.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: username},
	})
	if err != nil {
		b.logger.Error(ctx, "failed to get chat info", err)
		return Chat{}, fmt.Errorf("failed to get chat info: %w", err)
	}
	count, err := b.api.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: username},
	})
	if err != nil {
		b.logger.Error(ctx, "failed to get chat member count", err)
		return Chat{}, fmt.Errorf("failed to get chat member count: %w", err)
	}
	return Chat{
		ID:          chat.ID,
		Title:       chat.Title,
		Username:    chat.UserName,
		MemberCount: int64(count),
	}, nil
}

// IsFloodWait reports whether an error is Telegram flood control. Batch
// loops skip the current item and continue.
func IsFloodWait(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.RetryAfter > 0 {
			return true
		}
	}
	return strings.Contains(err.Error(), "Too Many Requests")
}
