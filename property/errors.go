package property

import "dreamkeys/apperr"

var (
	ErrNotFound  = apperr.New(apperr.KindNotFound, "property_not_found", "property not found")
	ErrInvalidID = apperr.New(apperr.KindInvalidArgument, "invalid_property_id", "invalid property id")

	ErrInvalidOutcome = apperr.New(apperr.KindInvalidArgument, "invalid_verification_status", "invalid verification status")
	ErrInvalidListing = apperr.New(apperr.KindInvalidArgument, "invalid_listing", "invalid listing")

	// ErrStatusConflict is returned by conditional verification when the
	// stored status differs from the expected one.
	ErrStatusConflict = apperr.New(apperr.KindConflict, "status_conflict", "verification status changed concurrently")
	ErrNotVerified    = apperr.New(apperr.KindConflict, "not_verified", "only verified properties can be advertised")

	ErrNoAgentProperties = apperr.New(apperr.KindNotFound, "no_agent_properties", "no properties found for the given agent")
)
