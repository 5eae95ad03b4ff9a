package bid

import "dreamkeys/apperr"

var (
	ErrNotFound  = apperr.New(apperr.KindNotFound, "bid_not_found", "bid not found")
	ErrInvalidID = apperr.New(apperr.KindInvalidArgument, "invalid_bid_id", "invalid bid id")

	ErrInvalidOffer = apperr.New(apperr.KindInvalidArgument, "invalid_offer", "invalid offer amount")
	ErrSelfBid      = apperr.New(apperr.KindForbidden, "self_bid", "cannot bid on your own listing")

	// ErrAlreadyDecided is returned when a decided bid receives the opposite
	// decision.
	ErrAlreadyDecided = apperr.New(apperr.KindConflict, "bid_already_decided", "bid already decided")
)
