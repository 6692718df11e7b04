package push

import (
	"fmt"

	"github.com/google/uuid"

	"adtel/internal/clients/telegram"
	"adtel/internal/store"
)

// offerKeyboard builds the selection keyboard for an offer: one row per
// remaining channel, selected channels marked, then claim and cancel rows.
func offerKeyboard(offerID uuid.UUID, channels []store.Channel, tariffs map[uuid.UUID]int64, selected map[uuid.UUID]bool) telegram.Keyboard {
	keyboard := make(telegram.Keyboard, 0, len(channels)+1)
	for _, ch := range channels {
		label := fmt.Sprintf("%s — %d/1k views", ch.Title, tariffs[ch.ID])
		if selected[ch.ID] {
			label = "✅ " + label
		}
		keyboard = append(keyboard, []telegram.Button{{
			Text:         label,
			CallbackData: ToggleCallback(offerID, ch.ID, tariffs[ch.ID]),
		}})
	}
	keyboard = append(keyboard, []telegram.Button{
		{Text: "Claim selected", CallbackData: ConfirmCallback(offerID)},
		{Text: "Dismiss", CallbackData: CancelCallback(offerID)},
	})
	return keyboard
}

func offerText(campaign store.Campaign, channelCount int) string {
	return fmt.Sprintf(
		"New campaign available: %s\n\n%d of your channels qualify. Pick the channels you want to run it on, then claim.",
		campaign.Title, channelCount,
	)
}
