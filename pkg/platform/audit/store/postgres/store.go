package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "biblioteca/pkg/domain"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. Appends join the
// caller's transaction when one is on the context, so an event is only
// recorded if the state change it describes commits.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var accountID any
	if !event.AccountID.IsNil() {
		accountID = event.AccountID.String()
	}
	_, err := tx.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_events (id, category, timestamp, account_id, subject, action, reason, request_id, actor_id, device)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.NewString(),
		string(event.Category),
		event.Timestamp,
		accountID,
		event.Subject,
		event.Action,
		event.Reason,
		event.RequestID,
		event.ActorID,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByAccount(ctx context.Context, accountID id.AccountID) ([]audit.Event, error) {
	return s.query(ctx, `
		SELECT category, timestamp, account_id, subject, action, reason, request_id, actor_id, device
		FROM audit_events
		WHERE account_id = $1
		ORDER BY timestamp ASC`, accountID.String())
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `
		SELECT category, timestamp, account_id, subject, action, reason, request_id, actor_id, device
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]audit.Event, error) {
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e         audit.Event
			category  string
			accountID sql.NullString
		)
		if err := rows.Scan(&category, &e.Timestamp, &accountID, &e.Subject, &e.Action,
			&e.Reason, &e.RequestID, &e.ActorID, &e.Device); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		if accountID.Valid {
			parsed, err := uuid.Parse(accountID.String)
			if err != nil {
				return nil, fmt.Errorf("parse audit account id: %w", err)
			}
			e.AccountID = id.AccountID(parsed)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
