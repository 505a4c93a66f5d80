package service

import (
	"context"

	"biblioteca/pkg/attrs"
	id "biblioteca/pkg/domain"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/requestcontext"
)

// logAudit writes an audit log line and, when a publisher is configured,
// records the event. Publishing failures are logged, never returned.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, accountID id.AccountID, actorID string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	device := requestcontext.Device(ctx)

	if s.logger != nil {
		args := append(attributes,
			"account_id", accountID.String(),
			"event", string(event),
			"log_type", "audit",
		)
		if actorID != "" {
			args = append(args, "actor_id", actorID)
		}
		if requestID != "" {
			args = append(args, "request_id", requestID)
		}
		if device != "" {
			args = append(args, "device", device)
		}
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		AccountID: accountID,
		Subject:   accountID.String(),
		Action:    string(event),
		Reason:    attrs.ExtractString(attributes, "reason"),
		RequestID: requestID,
		ActorID:   actorID,
		Device:    device,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event", "event", string(event), "error", err)
	}
}
