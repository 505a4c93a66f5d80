package testutil

import (
	"net/http"

	id "biblioteca/pkg/domain"
	"biblioteca/pkg/requestcontext"
)

// WithAccount adds an account ID to the request context, as the auth
// middleware would for a request carrying a valid token. Invalid IDs are
// silently ignored so tests can model anonymous requests.
func WithAccount(req *http.Request, accountID string) *http.Request {
	if parsed, err := id.ParseAccountID(accountID); err == nil {
		return req.WithContext(requestcontext.WithAccountID(req.Context(), parsed))
	}
	return req
}
