package bot

// Menu button labels. These arrive back as plain message text, so dispatch
// matches on them exactly.
const (
	menuAddChannel      = "➕ Add channel"
	menuRemoveChannel   = "➖ Remove channel"
	menuMyChannels      = "📋 My channels"
	menuActiveCampaigns = "🎁 Active campaigns"
	menuFinancialReport = "💰 Financial report"
	menuSendScreenshot  = "📸 Send screenshot"
	menuSetSticker      = "🏷 Register sticker"
	menuChangeSheba     = "🏦 Change sheba"
)

const (
	textWelcome = "Welcome! Use the menu below to manage your channels and campaigns."
	textStopped = "You are unsubscribed. Send /start to come back."
	textUnknown = "I didn't understand that. Use the menu below."

	textAskChannelTag  = "Send the public tag of your channel (for example @mychannel). Make sure the bot is an admin there first."
	textChannelLookup  = "Couldn't find that channel. Check the tag and make sure the bot is an admin, then try again."
	textChannelExists  = "That channel is already registered. You've been added as one of its admins."
	textAskSheba       = "Now send the payout sheba number for this channel (IR followed by 24 digits)."
	textBadSheba       = "That doesn't look like a valid sheba number. It must start with IR followed by 24 digits."
	textChannelAdded   = "Channel registered. You'll be notified when a campaign matches it."
	textNoChannels     = "You have no registered channels yet."
	textPickRemove     = "Pick the channel to remove:"
	textChannelRemoved = "Channel removed from your list."
	textPickSheba      = "Pick the channel whose payout account you want to replace:"
	textAskNewSheba    = "Send the new sheba number (IR followed by 24 digits). Every channel paying out to the current account will switch to it."
	textShebaChanged   = "Payout account replaced. Future payouts go to the new sheba; already-claimed campaigns keep the one they were claimed with."

	textAskSticker   = "Send the sticker you want posted alongside sticker contents."
	textStickerSaved = "Sticker saved."

	textNoCampaigns   = "No active campaigns right now."
	textPickCampaign  = "Active campaigns:"
	textNoAssignments = "You have no claimed campaigns yet."
	textPickShotAd    = "Pick the campaign to send a screenshot for:"
	textPickShotPost  = "Pick the post the screenshot belongs to:"
	textNoShotPosts   = "All posts of that campaign already have screenshots."
	textAskShot       = "Send the screenshot photo now."
	textShotSaved     = "Screenshot received, thanks."

	textSelectionSaved  = "Noted"
	textSelectionEmpty  = "Select at least one channel first."
	textSelectionClosed = "This offer is no longer open."
	textTariffMismatch  = "Channels in one claim must share the same tariff."
	textPayoutMismatch  = "Channels in one claim must share the same payout account."
	textClaimDone       = "Claim confirmed. Your posts are on the way."
	textClaimDismissed  = "Offer dismissed."
)
