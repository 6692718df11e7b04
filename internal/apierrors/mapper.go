package apierrors

import (
	"errors"
	"strings"

	"adtel/internal/push"
	"adtel/internal/store"

	"github.com/gin-gonic/gin"
)

// Error codes returned alongside error responses
const (
	CodeNotFound             = "NOT_FOUND"
	CodeOfferClosed          = "OFFER_CLOSED"
	CodeEmptySelection       = "EMPTY_SELECTION"
	CodeTariffMismatch       = "TARIFF_MISMATCH"
	CodePayoutMismatch       = "PAYOUT_ACCOUNT_MISMATCH"
	CodeClaimConflict        = "CLAIM_CONFLICT"
	CodeBadCallback          = "BAD_CALLBACK"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeTelegramUnavailable  = "TELEGRAM_UNAVAILABLE"
	CodeShortLinkUnavailable = "SHORTLINK_UNAVAILABLE"
)

// RespondWithError converts domain errors to a JSON error response.
// Processors have already logged the detailed error; this adds the
// correlation entry and sends a sanitized body.
func RespondWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var claimConflict *store.ClaimConflictError

	switch {
	case errors.Is(err, store.ErrNotFound):
		NotFound(c, "Resource not found")

	case errors.As(err, &claimConflict):
		Conflict(c, CodeClaimConflict, "Channel already assigned to another admin")

	case errors.Is(err, push.ErrAlreadyClaimed):
		Conflict(c, CodeClaimConflict, "Channel already assigned to another admin")

	case errors.Is(err, push.ErrOfferClosed):
		Conflict(c, CodeOfferClosed, "Offer is no longer open")

	case errors.Is(err, push.ErrEmptySelection):
		BadRequest(c, CodeEmptySelection, "No channels selected")

	case errors.Is(err, push.ErrTariffMismatch):
		Conflict(c, CodeTariffMismatch, "Tariff differs from current selection")

	case errors.Is(err, push.ErrPayoutAccountMismatch):
		Conflict(c, CodePayoutMismatch, "Payout account differs from current selection")

	case errors.Is(err, push.ErrBadCallback):
		BadRequest(c, CodeBadCallback, "Malformed callback payload")

	default:
		mapExternalServiceError(c, err)
	}
}

// mapExternalServiceError identifies upstream failures by message content
// and maps them to 503 responses; anything unknown becomes a sanitized 500.
func mapExternalServiceError(c *gin.Context, err error) {
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "telegram") || strings.Contains(errMsg, "flood") {
		ServiceUnavailable(
			c,
			CodeTelegramUnavailable,
			"Telegram is temporarily unavailable. Please try again later.",
			err,
		)
		return
	}

	if strings.Contains(errMsg, "short link") || strings.Contains(errMsg, "shortlink") {
		ServiceUnavailable(
			c,
			CodeShortLinkUnavailable,
			"Short-link service is temporarily unavailable. Please try again later.",
			err,
		)
		return
	}

	InternalError(c, err)
}
