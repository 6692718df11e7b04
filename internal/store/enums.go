package store

// Campaign ENUMs
const (
	CampaignStatusWaiting  = "waiting"
	CampaignStatusTest     = "test"
	CampaignStatusApproved = "approved"
	CampaignStatusClose    = "close"
	CampaignStatusRejected = "rejected"
)

// Content view types. Total content is posted once to the mother channel and
// forwarded to every recipient; partial content is posted separately per
// recipient.
const (
	ContentViewTypeTotal   = "total"
	ContentViewTypePartial = "partial"
)

// Content file types
const (
	FileTypePhoto    = "photo"
	FileTypeVideo    = "video"
	FileTypeAudio    = "audio"
	FileTypeDocument = "document"
	FileTypeSticker  = "sticker"
)

// Push offer ENUMs
const (
	PushOfferStatusSent     = "sent"
	PushOfferStatusReceived = "received"
	PushOfferStatusRejected = "rejected"
	PushOfferStatusExpired  = "expired"
	PushOfferStatusFailed   = "failed"
)

// Push offer recipient ENUMs
const (
	PushRecipientStatusSent    = "sent"
	PushRecipientStatusExpired = "expired"
	PushRecipientStatusFailed  = "failed"
)
