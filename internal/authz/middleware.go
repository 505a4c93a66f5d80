package authz

import (
	"context"
	"log/slog"
	"net/http"

	"biblioteca/internal/accounts/models"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	"biblioteca/pkg/platform/httputil"
	"biblioteca/pkg/requestcontext"
)

// AccountResolver loads the account behind an authenticated request.
type AccountResolver interface {
	Get(ctx context.Context, accountID id.AccountID) (*models.Account, error)
}

// ResolveCaller turns the account ID left on the context by token
// authentication into a Caller. Unknown or inactive accounts resolve to
// Anonymous; lookup faults are a 500.
func ResolveCaller(resolver AccountResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			accountID := requestcontext.AccountID(ctx)
			if accountID.IsNil() {
				next.ServeHTTP(w, r.WithContext(WithCaller(ctx, Anonymous())))
				return
			}
			account, err := resolver.Get(ctx, accountID)
			if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
				logger.ErrorContext(ctx, "failed to resolve caller",
					"account_id", accountID.String(),
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(ctx, CallerOf(account))))
		})
	}
}

// RequireRoles rejects requests whose caller fails gate.Check for roles.
// With no roles it only requires authentication.
func RequireRoles(gate *Gate, roles ...id.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := gate.Check(r.Context(), CallerFrom(r.Context()), roles...); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
