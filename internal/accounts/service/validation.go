package service

import (
	"context"
	"errors"
	"unicode/utf8"

	"biblioteca/internal/accounts/models"
	"biblioteca/internal/accounts/store"
	"biblioteca/internal/identity"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	"biblioteca/pkg/email"
)

// User-facing messages. The presentation layer shows them verbatim.
const (
	MsgFirstNameTooShort  = "El nombre debe tener al menos 2 caracteres"
	MsgLastNameTooShort   = "El apellido debe tener al menos 2 caracteres"
	MsgInvalidEmail       = "Correo electrónico inválido"
	MsgEmailTaken         = "El correo ya está registrado"
	MsgPasswordMismatch   = "Las contraseñas no coinciden"
	MsgWeakPasswordPrefix = "Contraseña insegura: "
	MsgInvalidNationalID  = "RUT inválido"
	MsgNationalIDTaken    = "El RUT ya está registrado"
	MsgInvalidPhone       = "Teléfono inválido: debe tener 9 dígitos"
	MsgHandleTaken        = "El nombre de usuario ya está en uso"
	MsgInvalidCredentials = "Correo o contraseña incorrectos"
	MsgWrongPassword      = "La contraseña actual es incorrecta"
	MsgInvalidRole        = "Rol no válido"
	MsgSelfRoleChange     = "No puedes cambiar tu propio rol"
	MsgSelfDeactivate     = "No puedes desactivar tu propia cuenta"
	MsgAccountNotFound    = "Usuario no encontrado"
	MsgProfileRequired    = "La cuenta no tiene un perfil asociado"
)

var (
	errNotFound        = store.ErrNotFound
	errHandleTaken     = store.ErrHandleTaken
	errEmailTaken      = store.ErrEmailTaken
	errNationalIDTaken = store.ErrNationalIDTaken
)

var (
	normalizeNationalID = identity.NormalizeNationalID
	normalizePhone      = identity.NormalizePhone
	baseHandle          = identity.BaseHandle
	handleCandidate     = identity.HandleCandidate
)

// validateRegistration runs the registration rules in order and stops at the
// first failure: names, email, password confirmation, password strength,
// national id checksum, national id uniqueness, phone.
func (s *Service) validateRegistration(ctx context.Context, req *models.RegisterRequest) error {
	if err := s.validateNames(req.FirstName, req.LastName); err != nil {
		return err
	}
	if err := s.validateEmail(ctx, req.Email, id.AccountID{}); err != nil {
		return err
	}
	if err := validateNewPassword(req.Password, req.PasswordConfirm); err != nil {
		return err
	}
	if !identity.ValidateNationalID(req.NationalID) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidNationalID)
	}
	_, err := s.store.FindByNationalID(ctx, normalizeNationalID(req.NationalID))
	switch {
	case err == nil:
		return dErrors.New(dErrors.CodeConflict, MsgNationalIDTaken)
	case !errors.Is(err, errNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check national id")
	}
	if !identity.ValidatePhone(req.Phone) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidPhone)
	}
	return nil
}

func (s *Service) validateNames(first, last string) error {
	if utf8.RuneCountInString(first) < models.MinNameLength {
		return dErrors.New(dErrors.CodeValidation, MsgFirstNameTooShort)
	}
	if utf8.RuneCountInString(last) < models.MinNameLength {
		return dErrors.New(dErrors.CodeValidation, MsgLastNameTooShort)
	}
	return nil
}

// validateEmail checks the format and that no account other than self
// already uses the address. Pass a zero self for new accounts.
func (s *Service) validateEmail(ctx context.Context, addr string, self id.AccountID) error {
	if !email.IsValid(addr) {
		return dErrors.New(dErrors.CodeValidation, MsgInvalidEmail)
	}
	existing, err := s.store.FindByEmail(ctx, addr)
	switch {
	case err == nil:
		if existing.ID != self {
			return dErrors.New(dErrors.CodeConflict, MsgEmailTaken)
		}
	case !errors.Is(err, errNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check email")
	}
	return nil
}

func validateNewPassword(password, confirm string) error {
	if password != confirm {
		return dErrors.New(dErrors.CodeValidation, MsgPasswordMismatch)
	}
	if ok, reason := identity.ValidatePasswordStrength(password); !ok {
		return dErrors.New(dErrors.CodeValidation, MsgWeakPasswordPrefix+reason)
	}
	return nil
}
