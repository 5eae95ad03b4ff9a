package auth

import "dreamkeys/apperr"

var (
	ErrInvalidToken = apperr.New(apperr.KindUnauthorized, "token_invalid", "invalid token")
	ErrExpiredToken = apperr.New(apperr.KindUnauthorized, "token_expired", "token expired")

	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "invalid_credentials", "invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = apperr.New(apperr.KindInvalidArgument, "weak_password", "password must be at least 8 characters")

	ErrUserNotFound   = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	ErrDuplicateEmail = apperr.New(apperr.KindConflict, "user_exists", "user already exists")
	ErrInvalidRole    = apperr.New(apperr.KindInvalidArgument, "invalid_role", "invalid role")
	ErrInvalidUserID  = apperr.New(apperr.KindInvalidArgument, "invalid_user_id", "invalid user id")

	// ErrSelfModification blocks admins from changing or removing their own account.
	ErrSelfModification = apperr.New(apperr.KindConflict, "self_modification", "cannot modify own account")
	ErrLastAdmin        = apperr.New(apperr.KindConflict, "last_admin", "cannot remove the last admin")
)
