package session

import (
	"time"

	"github.com/google/uuid"
)

// State is the conversation stage of a bot user.
type State string

const (
	// StateIdle means the user has no conversation in flight.
	StateIdle State = "idle"
	// StateAddChannel waits for the channel tag to register.
	StateAddChannel State = "add_channel"
	// StateGetSheba waits for the payout sheba number of a pending channel.
	StateGetSheba State = "get_sheba"
	// StateGetSticker waits for the sticker to use in sticker contents.
	StateGetSticker State = "get_sticker"
	// StateGetShot waits for the screenshot photo of a chosen post.
	StateGetShot State = "get_shot"
	// StateRemoveChannel waits for the channel to unregister.
	StateRemoveChannel State = "remove_channel"
	// StateExchangeSheba waits for the replacement sheba of a picked channel.
	StateExchangeSheba State = "exchange_sheba"
	// StateActiveAd means the user is browsing active campaigns.
	StateActiveAd State = "active_ad"
	// StateSelectingChannels means the user is building a channel selection
	// for an open push offer.
	StateSelectingChannels State = "selecting_channels"
)

// Selection is one channel the user has picked for the offer being worked.
// All selections in a working set must share the same tariff and payout
// account.
type Selection struct {
	ChannelID       uuid.UUID `json:"channel_id"`
	Tariff          int64     `json:"tariff"`
	PayoutAccountID uuid.UUID `json:"payout_account_id"`
	ViewEfficiency  int64     `json:"view_efficiency"`
}

// Session is the per-user conversation state, persisted between updates.
type Session struct {
	UserID       uuid.UUID   `json:"user_id"`
	TelegramID   int64       `json:"telegram_id"`
	State        State       `json:"state"`
	OfferID      *uuid.UUID  `json:"offer_id,omitempty"`
	CampaignID   *uuid.UUID  `json:"campaign_id,omitempty"`
	AssignmentID *uuid.UUID  `json:"assignment_id,omitempty"`
	Selections   []Selection `json:"selections,omitempty"`

	// Pending fields for multi-step flows.
	PendingChannelTag string     `json:"pending_channel_tag,omitempty"`
	PendingChannelID  *uuid.UUID `json:"pending_channel_id,omitempty"`
	ShotPostID        *uuid.UUID `json:"shot_post_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasSelection reports whether the channel is already in the working set.
func (s *Session) HasSelection(channelID uuid.UUID) bool {
	for _, sel := range s.Selections {
		if sel.ChannelID == channelID {
			return true
		}
	}
	return false
}

// AddSelection appends a channel to the working set. It does not validate
// tariff or payout consistency; callers check those rules first.
func (s *Session) AddSelection(sel Selection) {
	s.Selections = append(s.Selections, sel)
}

// RemoveSelection drops a channel from the working set.
func (s *Session) RemoveSelection(channelID uuid.UUID) {
	kept := s.Selections[:0]
	for _, sel := range s.Selections {
		if sel.ChannelID != channelID {
			kept = append(kept, sel)
		}
	}
	s.Selections = kept
	if len(s.Selections) == 0 {
		s.Selections = nil
	}
}

// SelectedChannelIDs returns the channel ids of the working set in
// insertion order.
func (s *Session) SelectedChannelIDs() []uuid.UUID {
	if len(s.Selections) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s.Selections))
	for _, sel := range s.Selections {
		ids = append(ids, sel.ChannelID)
	}
	return ids
}

// SelectionTariff returns the tariff shared by the working set, or false
// when the set is empty.
func (s *Session) SelectionTariff() (int64, bool) {
	if len(s.Selections) == 0 {
		return 0, false
	}
	return s.Selections[0].Tariff, true
}

// SelectionPayoutAccount returns the payout account shared by the working
// set, or false when the set is empty.
func (s *Session) SelectionPayoutAccount() (uuid.UUID, bool) {
	if len(s.Selections) == 0 {
		return uuid.Nil, false
	}
	return s.Selections[0].PayoutAccountID, true
}

// HeldViews returns the total view efficiency of the working set. Open
// selections count against a campaign's remaining budget until the user
// confirms or abandons them.
func (s *Session) HeldViews() int64 {
	var total int64
	for _, sel := range s.Selections {
		total += sel.ViewEfficiency
	}
	return total
}

// ClearSelection resets the working set and returns the session to idle.
func (s *Session) ClearSelection() {
	s.State = StateIdle
	s.OfferID = nil
	s.CampaignID = nil
	s.Selections = nil
}

// Reset drops every in-flight flow and returns the session to idle.
func (s *Session) Reset() {
	s.ClearSelection()
	s.AssignmentID = nil
	s.PendingChannelTag = ""
	s.PendingChannelID = nil
	s.ShotPostID = nil
}
