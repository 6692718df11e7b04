package push

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Callback payloads ride Telegram's 64-byte callback_data limit, so uuids are
// packed as 22-character unpadded base64 instead of their 36-character text
// form.

const (
	prefixConfirm = "push_campaign_get_"
	prefixCancel  = "push_cancel_"
	prefixToggle  = "push_"
)

var ErrBadCallback = errors.New("malformed callback payload")

func encodeID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func decodeID(s string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrBadCallback, err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrBadCallback, err)
	}
	return id, nil
}

// ToggleCallback encodes a channel-toggle button payload.
func ToggleCallback(offerID, channelID uuid.UUID, tariff int64) string {
	return prefixToggle + encodeID(offerID) + "_" + encodeID(channelID) + "_" + strconv.FormatInt(tariff, 10)
}

// ConfirmCallback encodes the claim button payload.
func ConfirmCallback(offerID uuid.UUID) string {
	return prefixConfirm + encodeID(offerID)
}

// CancelCallback encodes the cancel button payload.
func CancelCallback(offerID uuid.UUID) string {
	return prefixCancel + encodeID(offerID)
}

// IsOfferCallback reports whether the payload belongs to the push flow.
func IsOfferCallback(data string) bool {
	return strings.HasPrefix(data, prefixToggle)
}

// encodedIDLen is the width of a base64-packed uuid. The base64url alphabet
// itself contains '_', so toggle payloads are parsed by fixed offsets rather
// than by splitting on the separator.
const encodedIDLen = 22

// DecodeToggle parses a channel-toggle payload.
func DecodeToggle(data string) (offerID, channelID uuid.UUID, tariff int64, err error) {
	body, ok := strings.CutPrefix(data, prefixToggle)
	if !ok {
		return uuid.Nil, uuid.Nil, 0, ErrBadCallback
	}
	// <22>_<22>_<tariff>
	if len(body) < 2*encodedIDLen+3 || body[encodedIDLen] != '_' || body[2*encodedIDLen+1] != '_' {
		return uuid.Nil, uuid.Nil, 0, ErrBadCallback
	}
	if offerID, err = decodeID(body[:encodedIDLen]); err != nil {
		return uuid.Nil, uuid.Nil, 0, err
	}
	if channelID, err = decodeID(body[encodedIDLen+1 : 2*encodedIDLen+1]); err != nil {
		return uuid.Nil, uuid.Nil, 0, err
	}
	tariff, err = strconv.ParseInt(body[2*encodedIDLen+2:], 10, 64)
	if err != nil {
		return uuid.Nil, uuid.Nil, 0, fmt.Errorf("%w: %v", ErrBadCallback, err)
	}
	return offerID, channelID, tariff, nil
}

// DecodeConfirm parses a claim payload.
func DecodeConfirm(data string) (uuid.UUID, error) {
	body, ok := strings.CutPrefix(data, prefixConfirm)
	if !ok {
		return uuid.Nil, ErrBadCallback
	}
	return decodeID(body)
}

// DecodeCancel parses a cancel payload.
func DecodeCancel(data string) (uuid.UUID, error) {
	body, ok := strings.CutPrefix(data, prefixCancel)
	if !ok {
		return uuid.Nil, ErrBadCallback
	}
	return decodeID(body)
}
