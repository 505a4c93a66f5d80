package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"biblioteca/internal/accounts/metrics"
	"biblioteca/internal/accounts/models"
	"biblioteca/internal/accounts/secrets"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/requestcontext"
)

// maxHandleAttempts bounds how many suffixed handles registration tries
// before giving up.
const maxHandleAttempts = 100

type Store interface {
	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	Execute(ctx context.Context, accountID id.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error)
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByHandle(ctx context.Context, handle string) (*models.Account, error)
	FindByNationalID(ctx context.Context, nationalID string) (*models.Account, error)
	FindByIDs(ctx context.Context, ids []id.AccountID) (map[id.AccountID]*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service registers accounts, authenticates them and applies the
// administrative transitions (role change, activation toggle).
//
// Authorization is not checked here; callers reach these methods through
// the guarded operations assembled in the library facade.
type Service struct {
	store          Store
	hasher         PasswordHasher
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPasswordHasher overrides the bcrypt hasher, e.g. with a low cost in tests.
func WithPasswordHasher(h PasswordHasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		hasher: secrets.Hasher{},
		tracer: otel.Tracer("biblioteca/accounts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a reader account from the self-registration form.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.Account, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Register")
	defer span.End()

	account, err := s.createWithProfile(ctx, req, id.RoleReader)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	s.logAudit(ctx, audit.EventAccountRegistered, account.ID, "", "handle", account.Handle)
	return account, nil
}

// CreateLibrarian runs the registration pipeline on behalf of an
// administrator and assigns the bibliotecario role.
func (s *Service) CreateLibrarian(ctx context.Context, actor id.AccountID, req *models.RegisterRequest) (*models.Account, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.CreateLibrarian")
	defer span.End()

	account, err := s.createWithProfile(ctx, req, id.RoleLibrarian)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	s.logAudit(ctx, audit.EventLibrarianCreated, account.ID, actor.String(), "handle", account.Handle)
	return account, nil
}

// BootstrapAdmin creates an administrator account. Administrators cannot be
// granted through Promote, so this is the only way to create one; it is
// exposed through the operator CLI only.
func (s *Service) BootstrapAdmin(ctx context.Context, emailAddr, password, firstName, lastName string) (*models.Account, error) {
	req := &models.RegisterRequest{
		Email:           emailAddr,
		Password:        password,
		PasswordConfirm: password,
		FirstName:       firstName,
		LastName:        lastName,
	}
	req.Normalize()
	if err := s.validateNames(req.FirstName, req.LastName); err != nil {
		return nil, err
	}
	if err := s.validateEmail(ctx, req.Email, id.AccountID{}); err != nil {
		return nil, err
	}
	if err := validateNewPassword(req.Password, req.PasswordConfirm); err != nil {
		return nil, err
	}

	accountID := id.NewAccountID()
	account, err := s.newAccount(accountID, req, models.Profile{
		Role:       id.RoleAdmin,
		NationalID: models.PlaceholderNationalID(accountID),
	}, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.claimHandle(ctx, account); err != nil {
		return nil, err
	}
	s.incrementRegistered(id.RoleAdmin)
	s.logAudit(ctx, audit.EventAdminBootstrapped, account.ID, "", "handle", account.Handle)
	return account, nil
}

func (s *Service) createWithProfile(ctx context.Context, req *models.RegisterRequest, role id.Role) (*models.Account, error) {
	start := time.Now()
	defer s.observeRegister(start)

	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := s.validateRegistration(ctx, req); err != nil {
		return nil, err
	}

	account, err := s.newAccount(id.NewAccountID(), req, models.Profile{
		Role:       role,
		NationalID: normalizeNationalID(req.NationalID),
		Address:    req.Address,
		Phone:      normalizePhone(req.Phone),
	}, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.claimHandle(ctx, account); err != nil {
		return nil, err
	}
	s.incrementRegistered(role)
	return account, nil
}

func (s *Service) newAccount(accountID id.AccountID, req *models.RegisterRequest, profile models.Profile, now time.Time) (*models.Account, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	account, err := models.NewAccount(accountID, req.Email, hash, req.FirstName, req.LastName, profile, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	return account, nil
}

// claimHandle inserts account under the first free handle derived from its
// email. The store's unique constraint decides which candidate is free, so
// two concurrent registrations can never end up with the same handle.
func (s *Service) claimHandle(ctx context.Context, account *models.Account) error {
	base := baseHandle(account.Email)
	for n := range maxHandleAttempts {
		account.Handle = handleCandidate(base, n)
		err := s.store.Create(ctx, account)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errHandleTaken):
			s.incrementHandleRetry()
			continue
		case errors.Is(err, errEmailTaken):
			return dErrors.New(dErrors.CodeConflict, MsgEmailTaken)
		case errors.Is(err, errNationalIDTaken):
			return dErrors.New(dErrors.CodeConflict, MsgNationalIDTaken)
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
		}
	}
	account.Handle = ""
	return dErrors.New(dErrors.CodeConflict, "No se pudo asignar un nombre de usuario disponible")
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, wrapAccountErr(err, "failed to load account")
	}
	return account, nil
}

// GetMany returns the accounts that exist among ids, keyed by id.
func (s *Service) GetMany(ctx context.Context, ids []id.AccountID) (map[id.AccountID]*models.Account, error) {
	accounts, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load accounts")
	}
	return accounts, nil
}

// List returns every account for the administrator user list.
func (s *Service) List(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accounts")
	}
	return accounts, nil
}

// Promote sets the role of target. Only lector and bibliotecario can be
// granted and nobody can change their own role. A target without a profile
// receives one carrying a placeholder national id.
func (s *Service) Promote(ctx context.Context, actor id.AccountID, target id.AccountID, rawRole string) (*models.Account, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Promote", trace.WithAttributes(
		attribute.String("target_id", target.String()),
		attribute.String("role", rawRole),
	))
	defer span.End()

	if actor == target {
		return nil, dErrors.New(dErrors.CodeInvalidState, MsgSelfRoleChange)
	}
	role, err := id.ParseRole(rawRole)
	if err != nil || !role.IsAssignable() {
		return nil, dErrors.New(dErrors.CodeValidation, MsgInvalidRole)
	}

	now := requestcontext.Now(ctx)
	account, err := s.store.Execute(ctx, target,
		func(a *models.Account) error {
			return a.CanChangeRole(actor, role)
		},
		func(a *models.Account) {
			a.ApplyRole(role, now)
		},
	)
	if err != nil {
		recordSpanError(span, err)
		return nil, wrapAccountErr(err, "failed to change role")
	}

	s.incrementRoleChange(role)
	s.logAudit(ctx, audit.EventRoleChanged, account.ID, actor.String(), "role", role.String())
	return account, nil
}

// ToggleActive flips the active flag of target. Nobody can deactivate
// themselves.
func (s *Service) ToggleActive(ctx context.Context, actor id.AccountID, target id.AccountID) (*models.Account, error) {
	if actor == target {
		return nil, dErrors.New(dErrors.CodeInvalidState, MsgSelfDeactivate)
	}
	now := requestcontext.Now(ctx)
	account, err := s.store.Execute(ctx, target,
		func(a *models.Account) error {
			return a.CanToggleActive(actor)
		},
		func(a *models.Account) {
			a.ApplyToggleActive(now)
		},
	)
	if err != nil {
		return nil, wrapAccountErr(err, "failed to toggle account")
	}

	event := audit.EventAccountDeactivated
	if account.Active {
		event = audit.EventAccountActivated
	}
	s.logAudit(ctx, event, account.ID, actor.String())
	return account, nil
}

func wrapAccountErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, errNotFound):
		return dErrors.New(dErrors.CodeNotFound, MsgAccountNotFound)
	case errors.Is(err, errHandleTaken):
		return dErrors.New(dErrors.CodeConflict, MsgHandleTaken)
	case errors.Is(err, errEmailTaken):
		return dErrors.New(dErrors.CodeConflict, MsgEmailTaken)
	case errors.Is(err, errNationalIDTaken):
		return dErrors.New(dErrors.CodeConflict, MsgNationalIDTaken)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func recordSpanError(span trace.Span, err error) {
	if dErrors.IsInfrastructure(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (s *Service) incrementRegistered(role id.Role) {
	if s.metrics != nil {
		s.metrics.IncrementRegistered(role.String())
	}
}

func (s *Service) incrementHandleRetry() {
	if s.metrics != nil {
		s.metrics.IncrementHandleRetry()
	}
}

func (s *Service) incrementRoleChange(role id.Role) {
	if s.metrics != nil {
		s.metrics.IncrementRoleChange(role.String())
	}
}

func (s *Service) incrementLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementLogin(outcome)
	}
}

func (s *Service) observeRegister(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRegister(start)
	}
}
