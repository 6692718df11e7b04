package bot

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Callback prefixes owned by the bot's own flows. Offer callbacks use the
// push package's prefixes and are routed there.
const (
	prefixCampaign  = "cmp_"
	prefixRemove    = "rmch_"
	prefixSheba     = "shba_"
	prefixShotClaim = "shota_"
	prefixShotPost  = "shotp_"
)

var errBadCallback = errors.New("malformed callback payload")

func encodeID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func decodeAfter(data, prefix string) (uuid.UUID, error) {
	body, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return uuid.Nil, errBadCallback
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) != 16 {
		return uuid.Nil, errBadCallback
	}
	return uuid.FromBytes(raw)
}
