// Package httptransport exposes the library over JSON HTTP. Handlers decode
// input, run a library operation for the resolved caller and encode the
// result; they hold no business rules.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"biblioteca/internal/authz"
	jwttoken "biblioteca/internal/jwt_token"
	"biblioteca/internal/library"
	ratelimitmw "biblioteca/internal/ratelimit/middleware"
	id "biblioteca/pkg/domain"
	auth "biblioteca/pkg/platform/middleware/auth"
	"biblioteca/pkg/platform/middleware/metadata"
	request "biblioteca/pkg/platform/middleware/request"
	"biblioteca/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 30 * time.Second

// Tokens issues session tokens on login and validates them on every request.
type Tokens interface {
	Issue(accountID id.AccountID, handle string) (*jwttoken.IssuedToken, error)
	ValidateAccount(tokenString string) (id.AccountID, error)
}

// Config collects what the router needs. Metrics and LoginLimiter are optional.
type Config struct {
	Library        *library.Library
	Gate           *authz.Gate
	Tokens         Tokens
	Accounts       authz.AccountResolver
	Logger         *slog.Logger
	Metrics        request.LatencyObserver
	LoginLimiter   *ratelimitmw.Middleware
	RequestTimeout time.Duration
}

// Handler serves the library API.
type Handler struct {
	lib    *library.Library
	tokens Tokens
	logger *slog.Logger
}

// NewRouter builds the API router. Callers may mount extra operational
// routes (metrics, health) on the returned router.
func NewRouter(cfg Config) chi.Router {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	h := &Handler{lib: cfg.Library, tokens: cfg.Tokens, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.Timeout(timeout))
	r.Use(request.Latency(cfg.Metrics))

	r.Group(func(api chi.Router) {
		api.Use(request.ContentTypeJSON)
		api.Use(auth.OptionalAuth(cfg.Tokens, cfg.Logger))
		api.Use(authz.ResolveCaller(cfg.Accounts, cfg.Logger))

		api.Group(func(public chi.Router) {
			if cfg.LoginLimiter != nil {
				public.Use(cfg.LoginLimiter.RateLimit("auth"))
			}
			public.Post("/auth/register", h.handleRegister)
			public.Post("/auth/login", h.handleLogin)
		})

		api.Get("/items", h.handleListItems)
		api.Get("/items/{itemID}", h.handleGetItem)
		api.Post("/items", h.handleCreateItem)

		api.Get("/me", h.handleMe)
		api.Patch("/me", h.handleUpdateDetails)
		api.Put("/me/handle", h.handleChangeHandle)
		api.Put("/me/password", h.handleChangePassword)
		api.Get("/me/loans", h.handleActiveLoans)
		api.Get("/me/history", h.handleHistory)
		api.Get("/me/fines", h.handleFines)

		api.Post("/loans", h.handleBorrow)
		api.Post("/loans/{loanID}/return", h.handleReturn)
		api.Get("/loans/active", h.handleAllActiveLoans)
		api.Get("/accounts/{accountID}/loans", h.handleActiveLoans)
		api.Get("/accounts/{accountID}/history", h.handleHistory)
		api.Get("/accounts/{accountID}/fines", h.handleFines)
		api.Get("/dashboard", h.handleDashboard)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(authz.RequireRoles(cfg.Gate, library.Admins...))
			admin.Get("/accounts", h.handleListAccounts)
			admin.Post("/librarians", h.handleCreateLibrarian)
			admin.Put("/accounts/{accountID}/role", h.handlePromote)
			admin.Post("/accounts/{accountID}/toggle", h.handleToggleActive)
			admin.Get("/audit", h.handleAuditLog)
		})
	})

	return r
}

// run executes op for the caller resolved on the request and writes the
// result with status, or the error.
func run[Req, Res any](h *Handler, w http.ResponseWriter, r *http.Request, op authz.Operation[Req, Res], req Req, status int) {
	res, err := op(r.Context(), authz.CallerFrom(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, res)
}
