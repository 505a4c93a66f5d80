// Package authz decides who may run an operation. Every privileged
// operation is wrapped once with Authenticated or Authorize; services
// never compare roles themselves.
package authz

import (
	"context"
	"log/slog"
	"slices"

	"biblioteca/internal/accounts/models"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/requestcontext"
)

const (
	MsgLoginRequired = "Debes iniciar sesión"
	MsgNoProfile     = "Tu cuenta no tiene un perfil asignado"
	MsgForbidden     = "No tienes permisos para realizar esta acción"
)

// Caller is whoever is running an operation. A nil Account is an
// unauthenticated caller.
type Caller struct {
	Account *models.Account
}

// Anonymous is the unauthenticated caller.
func Anonymous() Caller {
	return Caller{}
}

// CallerOf wraps an account. Inactive accounts are treated as anonymous.
func CallerOf(account *models.Account) Caller {
	if account == nil || !account.Active {
		return Caller{}
	}
	return Caller{Account: account}
}

func (c Caller) IsAuthenticated() bool {
	return c.Account != nil
}

// ID is the caller's account ID, or the nil ID when unauthenticated.
func (c Caller) ID() id.AccountID {
	if c.Account == nil {
		return id.AccountID{}
	}
	return c.Account.ID
}

// Role is the caller's profile role. ok is false without a profile.
func (c Caller) Role() (id.Role, bool) {
	if c.Account == nil {
		return "", false
	}
	return c.Account.Role()
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Gate checks callers against role sets. Denials are logged and, when a
// publisher is configured, recorded as security events.
type Gate struct {
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(g *Gate) {
		g.auditPublisher = publisher
	}
}

func NewGate(opts ...Option) *Gate {
	g := &Gate{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check allows an authenticated caller whose role is one of roles. With no
// roles it only requires authentication.
//
// Errors: CodeUnauthorized when unauthenticated; CodeForbidden when the
// caller has no profile or a role outside the set.
func (g *Gate) Check(ctx context.Context, caller Caller, roles ...id.Role) error {
	v := decide(caller, roles)
	switch v.outcome {
	case unauthenticated:
		return dErrors.New(dErrors.CodeUnauthorized, MsgLoginRequired)
	case noProfile:
		g.denied(ctx, caller, "", "no_profile")
		return dErrors.New(dErrors.CodeForbidden, MsgNoProfile)
	case roleNotAllowed:
		g.denied(ctx, caller, v.role, "role_not_allowed")
		return dErrors.New(dErrors.CodeForbidden, MsgForbidden)
	}
	return nil
}

// Permits answers the same question as Check without recording a denial.
// Operations use it to pick a code path, e.g. whether a return is scoped
// to the caller's own loans.
func (g *Gate) Permits(caller Caller, roles ...id.Role) bool {
	return decide(caller, roles).outcome == allowed
}

type outcome int

const (
	allowed outcome = iota
	unauthenticated
	noProfile
	roleNotAllowed
)

type verdict struct {
	outcome outcome
	role    id.Role
}

func decide(caller Caller, roles []id.Role) verdict {
	if !caller.IsAuthenticated() {
		return verdict{outcome: unauthenticated}
	}
	if len(roles) == 0 {
		return verdict{outcome: allowed}
	}
	role, ok := caller.Role()
	if !ok {
		return verdict{outcome: noProfile}
	}
	if slices.Contains(roles, role) {
		return verdict{outcome: allowed, role: role}
	}
	return verdict{outcome: roleNotAllowed, role: role}
}

func (g *Gate) denied(ctx context.Context, caller Caller, role id.Role, reason string) {
	if g.logger != nil {
		g.logger.WarnContext(ctx, string(audit.EventAccessDenied),
			"account_id", caller.ID().String(),
			"role", role.String(),
			"reason", reason,
			"request_id", requestcontext.RequestID(ctx),
			"event", string(audit.EventAccessDenied),
			"log_type", "audit",
		)
	}
	if g.auditPublisher == nil {
		return
	}
	err := g.auditPublisher.Emit(ctx, audit.Event{
		AccountID: caller.ID(),
		Subject:   caller.ID().String(),
		Action:    string(audit.EventAccessDenied),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Device:    requestcontext.Device(ctx),
	})
	if err != nil && g.logger != nil {
		g.logger.ErrorContext(ctx, "failed to record access denial",
			"account_id", caller.ID().String(),
			"reason", reason,
			"error", err,
		)
	}
}

// Operation is a unit of work run on behalf of a caller.
type Operation[Req, Res any] func(ctx context.Context, caller Caller, req Req) (Res, error)

// Authenticated guards op so only authenticated callers reach it.
func Authenticated[Req, Res any](g *Gate, op Operation[Req, Res]) Operation[Req, Res] {
	return func(ctx context.Context, caller Caller, req Req) (Res, error) {
		if err := g.Check(ctx, caller); err != nil {
			var zero Res
			return zero, err
		}
		return op(ctx, caller, req)
	}
}

// Authorize guards op so only authenticated callers holding one of roles
// reach it. It stacks on Authenticated, so an anonymous caller is always
// CodeUnauthorized rather than CodeForbidden.
func Authorize[Req, Res any](g *Gate, op Operation[Req, Res], roles ...id.Role) Operation[Req, Res] {
	return Authenticated(g, func(ctx context.Context, caller Caller, req Req) (Res, error) {
		if err := g.Check(ctx, caller, roles...); err != nil {
			var zero Res
			return zero, err
		}
		return op(ctx, caller, req)
	})
}

type contextKeyCaller struct{}

// WithCaller stores the resolved caller on ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, contextKeyCaller{}, caller)
}

// CallerFrom returns the caller stored on ctx, or Anonymous.
func CallerFrom(ctx context.Context) Caller {
	if caller, ok := ctx.Value(contextKeyCaller{}).(Caller); ok {
		return caller
	}
	return Anonymous()
}
