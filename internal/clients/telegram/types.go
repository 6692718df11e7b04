package telegram

import "context"

// Button is one inline keyboard button. Exactly one of URL or CallbackData
// should be set.
type Button struct {
	Text         string
	URL          string
	CallbackData string
}

// Keyboard is an inline keyboard laid out as rows of buttons.
type Keyboard [][]Button

// Message identifies a posted message.
type Message struct {
	ChatID    int64
	MessageID int
}

// FileRef points at a file to attach. TelegramFileID is preferred when
// cached; URL is used for the first upload.
type FileRef struct {
	TelegramFileID string
	URL            string
}

// SendOptions carries the optional knobs of an outbound message.
// ReplyButtons renders a persistent reply keyboard; Keyboard wins when both
// are set.
type SendOptions struct {
	Keyboard              Keyboard
	ReplyButtons          [][]string
	ParseMode             string
	DisableWebPagePreview bool
}

// SentFile reports the platform-assigned file handle of an uploaded
// attachment, empty for plain text.
type SentFile struct {
	FileID string
}

// Chat describes a channel or group the bot can see.
type Chat struct {
	ID          int64
	Title       string
	Username    string
	MemberCount int64
}

// Update is an inbound bot event reduced to the fields the dispatch layer
// consumes.
type Update struct {
	UpdateID      int
	FromID        int64
	FromUsername  string
	FromName      string
	ChatID        int64
	MessageID     int
	Text          string
	CallbackID    string
	CallbackData  string
	PhotoFileID   string
	StickerFileID string
}

// IsCallback reports whether the update is a callback button press.
func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}

// Client is the outbound chat capability surface. Implementations wrap one
// bot token; handles are constructed at startup and passed in.
type Client interface {
	SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (Message, error)
	SendFile(ctx context.Context, chatID int64, fileType string, file FileRef, caption string, opts SendOptions) (Message, SentFile, error)
	ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (Message, error)
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string, keyboard Keyboard) error
	EditReplyMarkup(ctx context.Context, chatID int64, messageID int, keyboard Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	FileURL(ctx context.Context, fileID string) (string, error)
	ChatInfo(ctx context.Context, username string) (Chat, error)
}
