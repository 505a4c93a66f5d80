package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	"biblioteca/pkg/platform/httputil"
	"biblioteca/pkg/requestcontext"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

// writeError logs infrastructure faults before they are reduced to a
// generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if dErrors.IsInfrastructure(err) {
		ctx := r.Context()
		h.logger.ErrorContext(ctx, "request failed",
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.DecodeJSON(r, v); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

// accountParam reads an optional {accountID} path parameter.
func accountParam(r *http.Request) (*id.AccountID, error) {
	raw := chi.URLParam(r, "accountID")
	if raw == "" {
		return nil, nil
	}
	accountID, err := id.ParseAccountID(raw)
	if err != nil {
		return nil, err
	}
	return &accountID, nil
}
