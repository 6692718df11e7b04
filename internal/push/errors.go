package push

import "errors"

var (
	// ErrAlreadyClaimed means a selected channel was claimed by another admin
	// between selection and confirm. Wraps a *store.ClaimConflictError naming
	// the winner.
	ErrAlreadyClaimed = errors.New("channel already claimed")
	// ErrTariffMismatch means the toggled channel's tariff differs from the
	// working set's.
	ErrTariffMismatch = errors.New("tariff differs from current selection")
	// ErrPayoutAccountMismatch means the toggled channel pays out to a
	// different bank account than the working set.
	ErrPayoutAccountMismatch = errors.New("payout account differs from current selection")
	// ErrEmptySelection means confirm was pressed with nothing selected.
	ErrEmptySelection = errors.New("no channels selected")
	// ErrOfferClosed means the offer is no longer open for selection.
	ErrOfferClosed = errors.New("offer is no longer open")
)
