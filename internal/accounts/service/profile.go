package service

import (
	"context"
	"errors"
	"strings"

	"biblioteca/internal/accounts/models"
	"biblioteca/internal/identity"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	"biblioteca/pkg/email"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/requestcontext"
)

// Authenticate resolves login as an email first and as a handle second and
// checks password. Unknown logins, wrong passwords and inactive accounts all
// yield the same unauthorized error.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.Account, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.Authenticate")
	defer span.End()

	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeValidation, MsgInvalidCredentials)
	}

	account, err := s.findByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, errNotFound) {
			s.loginFailed(ctx, id.AccountID{}, login, "unknown_login")
			return nil, dErrors.New(dErrors.CodeUnauthorized, MsgInvalidCredentials)
		}
		recordSpanError(span, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	if err := s.hasher.Verify(password, account.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.loginFailed(ctx, account.ID, login, "wrong_password")
			return nil, dErrors.New(dErrors.CodeUnauthorized, MsgInvalidCredentials)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}
	if !account.Active {
		s.loginFailed(ctx, account.ID, login, "inactive")
		return nil, dErrors.New(dErrors.CodeUnauthorized, MsgInvalidCredentials)
	}

	s.incrementLogin("success")
	s.logAudit(ctx, audit.EventLoginSucceeded, account.ID, "", "handle", account.Handle)
	return account, nil
}

func (s *Service) findByLogin(ctx context.Context, login string) (*models.Account, error) {
	account, err := s.store.FindByEmail(ctx, email.Normalize(login))
	if err == nil || !errors.Is(err, errNotFound) {
		return account, err
	}
	return s.store.FindByHandle(ctx, login)
}

func (s *Service) loginFailed(ctx context.Context, accountID id.AccountID, login, reason string) {
	s.incrementLogin(reason)
	s.logAudit(ctx, audit.EventLoginFailed, accountID, "", "login", login, "reason", reason)
}

// UpdateDetails edits the caller's personal data after re-checking the
// current password.
func (s *Service) UpdateDetails(ctx context.Context, caller id.AccountID, req *models.UpdateDetailsRequest) (*models.Account, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()

	account, err := s.verifiedAccount(ctx, caller, req.CurrentPassword)
	if err != nil {
		return nil, err
	}
	if account.Profile == nil {
		return nil, dErrors.New(dErrors.CodeInvalidState, MsgProfileRequired)
	}
	if err := s.validateNames(req.FirstName, req.LastName); err != nil {
		return nil, err
	}
	if err := s.validateEmail(ctx, req.Email, account.ID); err != nil {
		return nil, err
	}
	if !identity.ValidatePhone(req.Phone) {
		return nil, dErrors.New(dErrors.CodeValidation, MsgInvalidPhone)
	}

	account.FirstName = req.FirstName
	account.LastName = req.LastName
	account.Email = req.Email
	account.Profile.Phone = normalizePhone(req.Phone)
	account.Profile.Address = req.Address
	account.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, account); err != nil {
		return nil, wrapAccountErr(err, "failed to update account")
	}
	s.logAudit(ctx, audit.EventDetailsUpdated, account.ID, "")
	return account, nil
}

// ChangeHandle sets a user-chosen handle after re-checking the current password.
func (s *Service) ChangeHandle(ctx context.Context, caller id.AccountID, req *models.ChangeHandleRequest) (*models.Account, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	account, err := s.verifiedAccount(ctx, caller, req.CurrentPassword)
	if err != nil {
		return nil, err
	}
	handle := strings.TrimSpace(req.Handle)
	if ok, reason := identity.ValidateHandle(handle); !ok {
		return nil, dErrors.New(dErrors.CodeValidation, reason)
	}
	if handle == account.Handle {
		return account, nil
	}

	previous := account.Handle
	account.Handle = handle
	account.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, account); err != nil {
		return nil, wrapAccountErr(err, "failed to change handle")
	}
	s.logAudit(ctx, audit.EventHandleChanged, account.ID, "", "previous", previous, "handle", handle)
	return account, nil
}

// ChangePassword replaces the caller's password. The new password must be
// confirmed and satisfy the strength policy.
func (s *Service) ChangePassword(ctx context.Context, caller id.AccountID, req *models.ChangePasswordRequest) error {
	if req == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	account, err := s.verifiedAccount(ctx, caller, req.CurrentPassword)
	if err != nil {
		return err
	}
	if err := validateNewPassword(req.NewPassword, req.Confirm); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	account.PasswordHash = hash
	account.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, account); err != nil {
		return wrapAccountErr(err, "failed to change password")
	}
	s.logAudit(ctx, audit.EventPasswordChanged, account.ID, "")
	return nil
}

// verifiedAccount loads caller and checks the current password. A mismatch
// is a validation error on the form, not an authentication failure.
func (s *Service) verifiedAccount(ctx context.Context, caller id.AccountID, currentPassword string) (*models.Account, error) {
	account, err := s.store.FindByID(ctx, caller)
	if err != nil {
		return nil, wrapAccountErr(err, "failed to load account")
	}
	if err := s.hasher.Verify(currentPassword, account.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, dErrors.New(dErrors.CodeValidation, MsgWrongPassword)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}
	return account, nil
}
