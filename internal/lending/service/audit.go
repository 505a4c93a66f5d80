package service

import (
	"context"

	"biblioteca/internal/lending/models"
	"biblioteca/pkg/attrs"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/requestcontext"
)

// logAudit writes an audit line for a ledger transition and, when a
// publisher is configured, records the event. Publishing never fails the
// transition.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, loan *models.Loan, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.AccountID(ctx)

	if s.logger != nil {
		args := append(attributes,
			"account_id", loan.AccountID.String(),
			"item_id", loan.ItemID.String(),
			"event", string(event),
			"log_type", "audit",
		)
		if !loan.ID.IsNil() {
			args = append(args, "loan_id", loan.ID.String())
		}
		if requestID != "" {
			args = append(args, "request_id", requestID)
		}
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	subject := loan.ItemID.String()
	if !loan.ID.IsNil() {
		subject = loan.ID.String()
	}
	var actorID string
	if !actor.IsNil() {
		actorID = actor.String()
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		AccountID: loan.AccountID,
		Subject:   subject,
		Action:    string(event),
		Reason:    attrs.ExtractString(attributes, "reason"),
		RequestID: requestID,
		ActorID:   actorID,
		Device:    requestcontext.Device(ctx),
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event", "event", string(event), "error", err)
	}
}
