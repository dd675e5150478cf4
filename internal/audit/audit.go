package audit

import (
	"context"

	"github.com/dinehub/realtime-gateway/pkg/log"
)

// Audit actions for the gateway.
const (
	ActionAuthFailed         = "gateway.auth_failed"
	ActionConnect            = "gateway.connect"
	ActionDisconnect         = "gateway.disconnect"
	ActionEvicted            = "gateway.evicted"
	ActionCrossTenantBlocked = "gateway.cross_tenant_blocked"
	ActionRateLimited        = "gateway.rate_limited"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, tenantID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldTenantID, tenantID).
		Msg(msg)
}

// LogWithDetail emits an audit log with an extra detail field. Security
// relevant events (cross-tenant blocks) go through here at warn level.
func LogWithDetail(ctx context.Context, action, tenantID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Warn().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldTenantID, tenantID).
		Str(FieldDetail, detail).
		Msg(msg)
}
