package config

import (
	"time"

	"github.com/adhocore/gronx"
)

// ValidCronExpr reports whether expr parses as a standard 5-field cron
// expression. An empty RoomConfig.Features.ReflectionCron means
// interval-only gating; callers should treat "" as always-valid.
func ValidCronExpr(expr string) bool {
	if expr == "" {
		return true
	}
	return gronx.New().IsValid(expr)
}

// ReflectionWindowDue reports whether expr is due at now, gating the
// reflection sweep to a cron window (RoomConfig.Features.ReflectionCron) in
// addition to the interval/message-count triggers PersonaRuntime already
// tracks. An empty expr means no cron gate is configured and the interval
// trigger alone decides.
func ReflectionWindowDue(expr string, now time.Time) (bool, error) {
	if expr == "" {
		return true, nil
	}
	return gronx.New().IsDue(expr, now)
}
