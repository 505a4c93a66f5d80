package audit

import (
	"context"
	"time"

	id "biblioteca/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so stores
// and sinks can apply different retention or routing.
type EventCategory string

const (
	// CategoryCompliance covers account lifecycle and money: registrations,
	// role changes, fines.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authentication outcomes and access changes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine circulation activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	AccountID id.AccountID  `json:"account_id"`
	Subject   string        `json:"subject"`
	Action    string        `json:"action"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	// ActorID is set when someone other than AccountID performed the action,
	// e.g. an administrator promoting a reader.
	ActorID string `json:"actor_id,omitempty"`
	// Device is a human readable client label derived from the User-Agent.
	Device string `json:"device,omitempty"`
}

type AuditEvent string

const (
	// Account events
	EventAccountRegistered  AuditEvent = "account_registered"
	EventLibrarianCreated   AuditEvent = "librarian_created"
	EventAdminBootstrapped  AuditEvent = "admin_bootstrapped"
	EventRoleChanged        AuditEvent = "role_changed"
	EventAccountActivated   AuditEvent = "account_activated"
	EventAccountDeactivated AuditEvent = "account_deactivated"
	EventDetailsUpdated     AuditEvent = "details_updated"
	EventHandleChanged      AuditEvent = "handle_changed"
	EventPasswordChanged    AuditEvent = "password_changed"

	// Auth events
	EventLoginSucceeded AuditEvent = "login_succeeded"
	EventLoginFailed    AuditEvent = "login_failed"
	EventAccessDenied   AuditEvent = "access_denied"

	// Lending events
	EventLoanCreated      AuditEvent = "loan_created"
	EventLoanReturned     AuditEvent = "loan_returned"
	EventFineAssessed     AuditEvent = "fine_assessed"
	EventBorrowRejected   AuditEvent = "borrow_rejected"
	EventCatalogItemAdded AuditEvent = "catalog_item_added"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAccountRegistered: CategoryCompliance,
	EventLibrarianCreated:  CategoryCompliance,
	EventAdminBootstrapped: CategoryCompliance,
	EventRoleChanged:       CategoryCompliance,
	EventFineAssessed:      CategoryCompliance,
	EventDetailsUpdated:    CategoryCompliance,

	EventLoginSucceeded:     CategorySecurity,
	EventLoginFailed:        CategorySecurity,
	EventAccessDenied:       CategorySecurity,
	EventAccountActivated:   CategorySecurity,
	EventAccountDeactivated: CategorySecurity,
	EventHandleChanged:      CategorySecurity,
	EventPasswordChanged:    CategorySecurity,

	EventLoanCreated:      CategoryOperations,
	EventLoanReturned:     CategoryOperations,
	EventBorrowRejected:   CategoryOperations,
	EventCatalogItemAdded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink forwards events to an external stream after they are stored.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close()
}
