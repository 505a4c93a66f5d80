package httptransport

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"biblioteca/internal/accounts/models"
	"biblioteca/internal/authz"
	"biblioteca/internal/library"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	"biblioteca/pkg/requestcontext"
)

// LoginResponse carries the session token and the account it belongs to.
type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Account     *models.Account `json:"account"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	run(h, w, r, h.lib.Register, &req, http.StatusCreated)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateLoginRequest(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.lib.Login(ctx, authz.Anonymous(), library.LoginInput{Login: req.Login, Password: req.Password})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.tokens.Issue(account.ID, account.Handle)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token",
			"account_id", account.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt,
		Account:     account,
	})
}

func validateLoginRequest(req models.LoginRequest) error {
	if !govalidator.StringLength(strings.TrimSpace(req.Login), "1", "254") {
		return dErrors.New(dErrors.CodeInvalidInput, "login is required")
	}
	if !govalidator.StringLength(req.Password, "1", "128") {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	return nil
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	run(h, w, r, h.lib.Me, library.Empty{}, http.StatusOK)
}

func (h *Handler) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	run(h, w, r, h.lib.UpdateDetails, &req, http.StatusOK)
}

func (h *Handler) handleChangeHandle(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeHandleRequest
	if !h.decode(w, r, &req) {
		return
	}
	run(h, w, r, h.lib.ChangeHandle, &req, http.StatusOK)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	run(h, w, r, h.lib.ChangePassword, &req, http.StatusNoContent)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	run(h, w, r, h.lib.ListAccounts, library.Empty{}, http.StatusOK)
}

func (h *Handler) handleCreateLibrarian(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	run(h, w, r, h.lib.CreateLibrarian, &req, http.StatusCreated)
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	target, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req models.PromoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	run(h, w, r, h.lib.Promote, library.PromoteInput{Target: target, Role: req.Role}, http.StatusOK)
}

func (h *Handler) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	target, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	run(h, w, r, h.lib.ToggleActive, target, http.StatusOK)
}

// maxAuditLimit caps ?limit= on the audit listing.
const maxAuditLimit = 500

func (h *Handler) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := library.AuditQuery{}
	if raw := r.URL.Query().Get("account"); raw != "" {
		accountID, err := id.ParseAccountID(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		q.Account = &accountID
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		q.Limit = min(limit, maxAuditLimit)
	}
	run(h, w, r, h.lib.AuditLog, q, http.StatusOK)
}
