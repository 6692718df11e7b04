package store

import (
	"time"

	"github.com/google/uuid"
)

// Campaign represents one ad buy with a view budget and a time window.
type Campaign struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Title     string     `db:"title" json:"title"`
	Status    string     `db:"status" json:"status"`
	Enabled   bool       `db:"enabled" json:"enabled"`
	MaxView   int64      `db:"max_view" json:"max_view"`
	PostLimit *int       `db:"post_limit" json:"post_limit,omitempty"`
	StartTime *time.Time `db:"start_time" json:"start_time,omitempty"`
	EndTime   *time.Time `db:"end_time" json:"end_time,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// BotUser is a channel-owning administrator known to the bot.
type BotUser struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TelegramID    int64     `db:"telegram_id" json:"telegram_id"`
	Username      *string   `db:"username" json:"username,omitempty"`
	FirstName     string    `db:"first_name" json:"first_name"`
	StickerFileID *string   `db:"sticker_file_id" json:"sticker_file_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DisplayName returns the username when present, otherwise the first name.
func (u BotUser) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	return u.FirstName
}

// BankAccount is a payout account (sheba) channels are paid through.
type BankAccount struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OwnerID   uuid.UUID `db:"owner_id" json:"owner_id"`
	Sheba     string    `db:"sheba" json:"sheba"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Channel is a publisher channel ads are posted into.
type Channel struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Username        *string   `db:"username" json:"username,omitempty"`
	TelegramID      int64     `db:"telegram_id" json:"telegram_id"`
	MemberCount     int64     `db:"member_count" json:"member_count"`
	ViewEfficiency  int64     `db:"view_efficiency" json:"view_efficiency"`
	PayoutAccountID uuid.UUID `db:"payout_account_id" json:"payout_account_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// CampaignPublisher attaches a channel to a campaign with a tariff
// (price per 1000 views).
type CampaignPublisher struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CampaignID uuid.UUID `db:"campaign_id" json:"campaign_id"`
	ChannelID  uuid.UUID `db:"channel_id" json:"channel_id"`
	Tariff     int64     `db:"tariff" json:"tariff"`
}

// EligibleChannel is a channel still open for allocation under a campaign,
// joined with its tariff and owning-admin set key.
type EligibleChannel struct {
	ID              uuid.UUID `db:"id"`
	Title           string    `db:"title"`
	ViewEfficiency  int64     `db:"view_efficiency"`
	Tariff          int64     `db:"tariff"`
	PayoutAccountID uuid.UUID `db:"payout_account_id"`
}

// Content is one renderable creative unit inside a campaign.
type Content struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CampaignID      uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	Ord             int        `db:"ord" json:"ord"`
	ViewType        string     `db:"view_type" json:"view_type"`
	Text            string     `db:"text" json:"text"`
	IsSticker       bool       `db:"is_sticker" json:"is_sticker"`
	PostLink        *string    `db:"post_link" json:"post_link,omitempty"`
	MotherChannelID *uuid.UUID `db:"mother_channel_id" json:"mother_channel_id,omitempty"`
	MessageID       *int       `db:"message_id" json:"message_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// ContentFile is an attachment rotated across renders of one content.
type ContentFile struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ContentID      uuid.UUID `db:"content_id" json:"content_id"`
	FileType       string    `db:"file_type" json:"file_type"`
	FileRef        string    `db:"file_ref" json:"file_ref"`
	TelegramFileID *string   `db:"telegram_file_id" json:"telegram_file_id,omitempty"`
	Ord            int       `db:"ord" json:"ord"`
}

// ContentLink is a tracked link inside a content body or bound to a button.
type ContentLink struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ContentID  uuid.UUID  `db:"content_id" json:"content_id"`
	URL        string     `db:"url" json:"url"`
	ButtonID   *uuid.UUID `db:"button_id" json:"button_id,omitempty"`
	UTMSource  *string    `db:"utm_source" json:"utm_source,omitempty"`
	UTMMedium  *string    `db:"utm_medium" json:"utm_medium,omitempty"`
	UTMTerm    *string    `db:"utm_term" json:"utm_term,omitempty"`
	UTMContent *string    `db:"utm_content" json:"utm_content,omitempty"`
}

// ContentButton is an inline keyboard button with a grid position.
type ContentButton struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ContentID uuid.UUID `db:"content_id" json:"content_id"`
	Text      string    `db:"text" json:"text"`
	URL       *string   `db:"url" json:"url,omitempty"`
	Row       int       `db:"grid_row" json:"grid_row"`
	Col       int       `db:"grid_col" json:"grid_col"`
}

// PushOffer is a broadcast invitation to claim channels for a campaign.
type PushOffer struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CampaignID uuid.UUID `db:"campaign_id" json:"campaign_id"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// PushOfferRecipient is the per-admin delivery record for one offer.
// MessageID stays nil until a message is actually posted.
type PushOfferRecipient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OfferID   uuid.UUID `db:"offer_id" json:"offer_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	MessageID *int      `db:"message_id" json:"message_id,omitempty"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Assignment is the confirmed, exclusive binding of channels to one admin
// for one campaign.
type Assignment struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	CampaignID   uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	Tariff       int64      `db:"tariff" json:"tariff"`
	ShebaNumber  string     `db:"sheba_number" json:"sheba_number"`
	ShebaOwner   string     `db:"sheba_owner" json:"sheba_owner"`
	ReceiptPrice *int64     `db:"receipt_price" json:"receipt_price,omitempty"`
	ReceiptDate  *time.Time `db:"receipt_date" json:"receipt_date,omitempty"`
	ReceiptCode  *string    `db:"receipt_code" json:"receipt_code,omitempty"`
	PaidAt       *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Post is one rendered message instance tied to an assignment and a content.
type Post struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	AssignmentID uuid.UUID  `db:"assignment_id" json:"assignment_id"`
	ContentID    uuid.UUID  `db:"content_id" json:"content_id"`
	ChannelID    uuid.UUID  `db:"channel_id" json:"channel_id"`
	MessageID    int        `db:"message_id" json:"message_id"`
	Views        *int64     `db:"views" json:"views,omitempty"`
	ShotFileID   *string    `db:"shot_file_id" json:"shot_file_id,omitempty"`
	ShotAt       *time.Time `db:"shot_at" json:"shot_at,omitempty"`
	NoShot       bool       `db:"no_shot" json:"no_shot"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// PostViewLog is one time-series sample of a post's view count.
type PostViewLog struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PostID    uuid.UUID `db:"post_id" json:"post_id"`
	Views     int64     `db:"views" json:"views"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ShortLink is a tracked redirect minted for one content link, usually
// discriminated per assignment.
type ShortLink struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	LinkID       uuid.UUID  `db:"link_id" json:"link_id"`
	AssignmentID *uuid.UUID `db:"assignment_id" json:"assignment_id,omitempty"`
	ExternalID   string     `db:"external_id" json:"external_id"`
	ShortURL     string     `db:"short_url" json:"short_url"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// ShortLinkLog is one time-series sample of a short link's hit counters.
type ShortLinkLog struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ShortLinkID uuid.UUID `db:"short_link_id" json:"short_link_id"`
	HitCount    int64     `db:"hit_count" json:"hit_count"`
	IPCount     int64     `db:"ip_count" json:"ip_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
