// Package audit writes the trail of privileged marketplace actions.
package audit

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

type Logger struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Bool("audit", true).Logger()}
}

// Default builds an audit logger on top of the global zerolog logger.
func Default() *Logger {
	return New(zlog.Logger)
}

func (l *Logger) RoleChanged(ctx context.Context, actor, userID, from, to string) {
	l.log.Info().
		Str("action", "role_changed").
		Str("actor", maskEmail(actor)).
		Str("user_id", userID).
		Str("from", from).
		Str("to", to).
		Msg("role changed")
}

func (l *Logger) UserFlagged(ctx context.Context, actor, userID string) {
	l.log.Warn().
		Str("action", "user_flagged").
		Str("actor", maskEmail(actor)).
		Str("user_id", userID).
		Msg("user marked as fraud")
}

func (l *Logger) UserDeleted(ctx context.Context, actor, userID string) {
	l.log.Warn().
		Str("action", "user_deleted").
		Str("actor", maskEmail(actor)).
		Str("user_id", userID).
		Msg("user deleted")
}

func (l *Logger) PropertyVerified(ctx context.Context, actor, propertyID, status string) {
	l.log.Info().
		Str("action", "property_verified").
		Str("actor", maskEmail(actor)).
		Str("property_id", propertyID).
		Str("status", status).
		Msg("property verification set")
}

func (l *Logger) AdvertisingChanged(ctx context.Context, actor, propertyID string, advertised bool) {
	l.log.Info().
		Str("action", "advertising_changed").
		Str("actor", maskEmail(actor)).
		Str("property_id", propertyID).
		Bool("advertised", advertised).
		Msg("property advertising changed")
}

func (l *Logger) PropertiesPurged(ctx context.Context, actor, agentEmail string, count int64) {
	l.log.Warn().
		Str("action", "properties_purged").
		Str("actor", maskEmail(actor)).
		Str("agent", maskEmail(agentEmail)).
		Int64("count", count).
		Msg("agent properties removed")
}

func (l *Logger) BidDecided(ctx context.Context, actor, bidID, status string) {
	l.log.Info().
		Str("action", "bid_decided").
		Str("actor", maskEmail(actor)).
		Str("bid_id", bidID).
		Str("status", status).
		Msg("bid decided")
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
