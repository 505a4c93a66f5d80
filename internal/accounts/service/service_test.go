package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,PasswordHasher,AuditPublisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"biblioteca/internal/accounts/metrics"
	"biblioteca/internal/accounts/models"
	"biblioteca/internal/accounts/secrets"
	"biblioteca/internal/accounts/service/mocks"
	"biblioteca/internal/accounts/store"
	"biblioteca/internal/identity"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/platform/audit/publisher"
	auditmemory "biblioteca/pkg/platform/audit/store/memory"
	"biblioteca/pkg/requestcontext"
)

const strongPassword = "Secreta1!"

type AccountServiceSuite struct {
	suite.Suite
	store   *store.InMemory
	audit   *auditmemory.InMemoryStore
	service *Service
	ctx     context.Context
}

func TestAccountServiceSuite(t *testing.T) {
	suite.Run(t, new(AccountServiceSuite))
}

func (s *AccountServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.service = New(s.store,
		WithPasswordHasher(secrets.Hasher{Cost: bcrypt.MinCost}),
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
}

func validRequest(email, rut string) *models.RegisterRequest {
	return &models.RegisterRequest{
		Email:           email,
		Password:        strongPassword,
		PasswordConfirm: strongPassword,
		FirstName:       "Ana",
		LastName:        "Rojas",
		NationalID:      rut,
		Address:         "Av. Siempre Viva 742",
		Phone:           "+56 9 1234 5678",
	}
}

func (s *AccountServiceSuite) register(email, rut string) *models.Account {
	acc, err := s.service.Register(s.ctx, validRequest(email, rut))
	s.Require().NoError(err)
	return acc
}

func (s *AccountServiceSuite) requireCode(err error, code dErrors.Code, msg string) {
	s.Require().Error(err)
	s.Require().True(dErrors.HasCode(err, code), "expected %s, got %v", code, err)
	if msg != "" {
		s.Equal(msg, dErrors.MessageOf(err))
	}
}

func (s *AccountServiceSuite) TestRegister() {
	s.Run("creates active reader with normalized fields", func() {
		acc := s.register("Ana.Rojas@Example.com", "12.345.678-5")

		s.Equal("ana_rojas", acc.Handle)
		s.Equal("ana.rojas@example.com", acc.Email)
		s.True(acc.Active)
		s.NotEqual(strongPassword, acc.PasswordHash)
		s.Require().NoError(bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(strongPassword)))
		s.Require().NotNil(acc.Profile)
		s.Equal(id.RoleReader, acc.Profile.Role)
		s.Equal("123456785", acc.Profile.NationalID)
		s.Equal("912345678", acc.Profile.Phone)

		events, err := s.audit.ListByAccount(s.ctx, acc.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventAccountRegistered), events[0].Action)
	})

	s.Run("second registration with same local part gets suffix", func() {
		acc := s.register("ana.rojas@otro.cl", "10000013-K")
		s.Equal("ana_rojas1", acc.Handle)
	})
}

func (s *AccountServiceSuite) TestRegister_ValidationOrder() {
	s.register("taken@example.com", "12345678-5")

	cases := []struct {
		name string
		edit func(r *models.RegisterRequest)
		code dErrors.Code
		msg  string
	}{
		{"short first name wins over everything", func(r *models.RegisterRequest) {
			r.FirstName = "A"
			r.LastName = "B"
			r.Email = "taken@example.com"
		}, dErrors.CodeValidation, MsgFirstNameTooShort},
		{"short last name", func(r *models.RegisterRequest) { r.LastName = "R" }, dErrors.CodeValidation, MsgLastNameTooShort},
		{"bad email format", func(r *models.RegisterRequest) { r.Email = "not-an-email" }, dErrors.CodeValidation, MsgInvalidEmail},
		{"email taken before password mismatch", func(r *models.RegisterRequest) {
			r.Email = "TAKEN@example.com"
			r.PasswordConfirm = "other"
		}, dErrors.CodeConflict, MsgEmailTaken},
		{"password mismatch before strength", func(r *models.RegisterRequest) {
			r.Password = "weak"
			r.PasswordConfirm = "weak2"
		}, dErrors.CodeValidation, MsgPasswordMismatch},
		{"weak password carries reason", func(r *models.RegisterRequest) {
			r.Password = "secreta1!"
			r.PasswordConfirm = "secreta1!"
		}, dErrors.CodeValidation, MsgWeakPasswordPrefix + identity.ReasonPasswordNoUpper},
		{"bad checksum before uniqueness", func(r *models.RegisterRequest) { r.NationalID = "12.345.678-9" }, dErrors.CodeValidation, MsgInvalidNationalID},
		{"national id taken", func(r *models.RegisterRequest) { r.NationalID = "12345678-5" }, dErrors.CodeConflict, MsgNationalIDTaken},
		{"bad phone last", func(r *models.RegisterRequest) { r.Phone = "12345" }, dErrors.CodeValidation, MsgInvalidPhone},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := validRequest("nueva@example.com", "10000013-K")
			tc.edit(req)
			_, err := s.service.Register(s.ctx, req)
			s.requireCode(err, tc.code, tc.msg)
		})
	}

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1, "failed registrations must not persist anything")
}

func (s *AccountServiceSuite) TestRegister_ConcurrentSameLocalPart() {
	const n = 8
	ruts := []string{"12345678-5", "10000013-K", "6-K", "0-0", "11111111-1", "22222222-2", "33333333-3", "44444444-4"}

	var wg sync.WaitGroup
	handles := make(chan string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := s.service.Register(s.ctx, validRequest(fmt.Sprintf("lector@dominio%d.cl", i), ruts[i]))
			if s.NoError(err) {
				handles <- acc.Handle
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := map[string]bool{}
	for h := range handles {
		s.False(seen[h], "duplicate handle %s", h)
		seen[h] = true
	}
	s.Len(seen, n)
	s.True(seen["lector"])
}

func (s *AccountServiceSuite) TestCreateLibrarianAndBootstrapAdmin() {
	admin, err := s.service.BootstrapAdmin(s.ctx, "jefa@biblioteca.cl", strongPassword, "Marta", "Díaz")
	s.Require().NoError(err)
	role, ok := admin.Role()
	s.Require().True(ok)
	s.Equal(id.RoleAdmin, role)
	s.True(admin.Profile.HasPlaceholderNationalID())

	lib, err := s.service.CreateLibrarian(s.ctx, admin.ID, validRequest("bib@biblioteca.cl", "12345678-5"))
	s.Require().NoError(err)
	s.Equal(id.RoleLibrarian, lib.Profile.Role)

	events, err := s.audit.ListByAccount(s.ctx, lib.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(admin.ID.String(), events[0].ActorID)
}

func (s *AccountServiceSuite) TestAuthenticate() {
	acc := s.register("ana@example.com", "12345678-5")

	s.Run("by email", func() {
		got, err := s.service.Authenticate(s.ctx, "ANA@example.com", strongPassword)
		s.Require().NoError(err)
		s.Equal(acc.ID, got.ID)
	})

	s.Run("by handle", func() {
		got, err := s.service.Authenticate(s.ctx, acc.Handle, strongPassword)
		s.Require().NoError(err)
		s.Equal(acc.ID, got.ID)
	})

	s.Run("wrong password", func() {
		_, err := s.service.Authenticate(s.ctx, "ana@example.com", "Secreta2!")
		s.requireCode(err, dErrors.CodeUnauthorized, MsgInvalidCredentials)
	})

	s.Run("unknown login", func() {
		_, err := s.service.Authenticate(s.ctx, "nadie", strongPassword)
		s.requireCode(err, dErrors.CodeUnauthorized, MsgInvalidCredentials)
	})

	s.Run("inactive account", func() {
		admin, err := s.service.BootstrapAdmin(s.ctx, "admin@example.com", strongPassword, "Admin", "Root")
		s.Require().NoError(err)
		_, err = s.service.ToggleActive(s.ctx, admin.ID, acc.ID)
		s.Require().NoError(err)

		_, err = s.service.Authenticate(s.ctx, "ana@example.com", strongPassword)
		s.requireCode(err, dErrors.CodeUnauthorized, MsgInvalidCredentials)
	})
}

func (s *AccountServiceSuite) TestPromote() {
	admin, err := s.service.BootstrapAdmin(s.ctx, "admin@example.com", strongPassword, "Admin", "Root")
	s.Require().NoError(err)
	reader := s.register("ana@example.com", "12345678-5")

	s.Run("promotes reader to librarian", func() {
		got, err := s.service.Promote(s.ctx, admin.ID, reader.ID, "bibliotecario")
		s.Require().NoError(err)
		s.Equal(id.RoleLibrarian, got.Profile.Role)
		s.Equal("123456785", got.Profile.NationalID)
	})

	s.Run("self promotion is a state error", func() {
		_, err := s.service.Promote(s.ctx, admin.ID, admin.ID, "lector")
		s.requireCode(err, dErrors.CodeInvalidState, MsgSelfRoleChange)
	})

	s.Run("administrador is not assignable", func() {
		_, err := s.service.Promote(s.ctx, admin.ID, reader.ID, "administrador")
		s.requireCode(err, dErrors.CodeValidation, MsgInvalidRole)
	})

	s.Run("unknown role", func() {
		_, err := s.service.Promote(s.ctx, admin.ID, reader.ID, "superuser")
		s.requireCode(err, dErrors.CodeValidation, MsgInvalidRole)
	})

	s.Run("missing target", func() {
		_, err := s.service.Promote(s.ctx, admin.ID, id.NewAccountID(), "lector")
		s.requireCode(err, dErrors.CodeNotFound, MsgAccountNotFound)
	})

	s.Run("profile-less target gets placeholder", func() {
		bare := &models.Account{
			ID:           id.NewAccountID(),
			Handle:       "sinperfil",
			Email:        "sinperfil@example.com",
			PasswordHash: "x",
			Active:       true,
		}
		s.Require().NoError(s.store.Create(s.ctx, bare))

		got, err := s.service.Promote(s.ctx, admin.ID, bare.ID, "lector")
		s.Require().NoError(err)
		s.Require().NotNil(got.Profile)
		s.Equal(models.PlaceholderNationalID(bare.ID), got.Profile.NationalID)
		s.False(identity.ValidateNationalID(got.Profile.NationalID))
	})
}

func (s *AccountServiceSuite) TestToggleActive() {
	admin, err := s.service.BootstrapAdmin(s.ctx, "admin@example.com", strongPassword, "Admin", "Root")
	s.Require().NoError(err)
	reader := s.register("ana@example.com", "12345678-5")

	got, err := s.service.ToggleActive(s.ctx, admin.ID, reader.ID)
	s.Require().NoError(err)
	s.False(got.Active)

	got, err = s.service.ToggleActive(s.ctx, admin.ID, reader.ID)
	s.Require().NoError(err)
	s.True(got.Active)

	_, err = s.service.ToggleActive(s.ctx, admin.ID, admin.ID)
	s.requireCode(err, dErrors.CodeInvalidState, MsgSelfDeactivate)

	_, err = s.service.ToggleActive(s.ctx, admin.ID, id.NewAccountID())
	s.requireCode(err, dErrors.CodeNotFound, "")
}

func (s *AccountServiceSuite) TestSelfService() {
	acc := s.register("ana@example.com", "12345678-5")
	other := s.register("beto@example.com", "10000013-K")

	s.Run("update details requires current password", func() {
		_, err := s.service.UpdateDetails(s.ctx, acc.ID, &models.UpdateDetailsRequest{
			CurrentPassword: "wrong", FirstName: "Ana", LastName: "Rojas", Email: "ana@example.com", Phone: "912345678",
		})
		s.requireCode(err, dErrors.CodeValidation, MsgWrongPassword)
	})

	s.Run("update details rejects another account's email", func() {
		_, err := s.service.UpdateDetails(s.ctx, acc.ID, &models.UpdateDetailsRequest{
			CurrentPassword: strongPassword, FirstName: "Ana", LastName: "Rojas", Email: other.Email, Phone: "912345678",
		})
		s.requireCode(err, dErrors.CodeConflict, MsgEmailTaken)
	})

	s.Run("update details keeps own email", func() {
		got, err := s.service.UpdateDetails(s.ctx, acc.ID, &models.UpdateDetailsRequest{
			CurrentPassword: strongPassword, FirstName: "Anita", LastName: "Rojas", Email: "ana@example.com",
			Phone: "9 8765 4321", Address: "Nueva 1",
		})
		s.Require().NoError(err)
		s.Equal("Anita", got.FirstName)
		s.Equal("987654321", got.Profile.Phone)
		s.Equal("Nueva 1", got.Profile.Address)
	})

	s.Run("change handle validates charset", func() {
		_, err := s.service.ChangeHandle(s.ctx, acc.ID, &models.ChangeHandleRequest{CurrentPassword: strongPassword, Handle: "ana rojas"})
		s.requireCode(err, dErrors.CodeValidation, identity.ReasonHandleBadCharset)
	})

	s.Run("change handle rejects taken handle", func() {
		_, err := s.service.ChangeHandle(s.ctx, acc.ID, &models.ChangeHandleRequest{CurrentPassword: strongPassword, Handle: other.Handle})
		s.requireCode(err, dErrors.CodeConflict, MsgHandleTaken)
	})

	s.Run("change handle", func() {
		got, err := s.service.ChangeHandle(s.ctx, acc.ID, &models.ChangeHandleRequest{CurrentPassword: strongPassword, Handle: "ana_r"})
		s.Require().NoError(err)
		s.Equal("ana_r", got.Handle)
	})

	s.Run("change password", func() {
		err := s.service.ChangePassword(s.ctx, acc.ID, &models.ChangePasswordRequest{
			CurrentPassword: strongPassword, NewPassword: "Nueva123$", Confirm: "Nueva123$",
		})
		s.Require().NoError(err)
		_, err = s.service.Authenticate(s.ctx, "ana_r", "Nueva123$")
		s.Require().NoError(err)
	})

	s.Run("change password rejects weak password", func() {
		err := s.service.ChangePassword(s.ctx, acc.ID, &models.ChangePasswordRequest{
			CurrentPassword: "Nueva123$", NewPassword: "corta", Confirm: "corta",
		})
		s.requireCode(err, dErrors.CodeValidation, MsgWeakPasswordPrefix+identity.ReasonPasswordTooShort)
	})
}

func TestService_InfrastructureErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	mockHasher := mocks.NewMockPasswordHasher(ctrl)
	svc := New(mockStore, WithPasswordHasher(mockHasher))
	ctx := context.Background()
	dbDown := errors.New("connection refused")

	t.Run("email lookup failure is internal", func(t *testing.T) {
		mockStore.EXPECT().FindByEmail(gomock.Any(), "ana@example.com").Return(nil, dbDown)

		_, err := svc.Register(ctx, validRequest("ana@example.com", "12345678-5"))
		if !dErrors.HasCode(err, dErrors.CodeInternal) || !errors.Is(err, dbDown) {
			t.Fatalf("expected wrapped internal error, got %v", err)
		}
	})

	t.Run("handle retries then email race maps to conflict", func(t *testing.T) {
		mockStore.EXPECT().FindByEmail(gomock.Any(), "ana@example.com").Return(nil, store.ErrNotFound)
		mockStore.EXPECT().FindByNationalID(gomock.Any(), "123456785").Return(nil, store.ErrNotFound)
		mockHasher.EXPECT().Hash(strongPassword).Return("hash", nil)
		gomock.InOrder(
			mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(store.ErrHandleTaken),
			mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(store.ErrEmailTaken),
		)

		_, err := svc.Register(ctx, validRequest("ana@example.com", "12345678-5"))
		if !dErrors.HasCode(err, dErrors.CodeConflict) || dErrors.MessageOf(err) != MsgEmailTaken {
			t.Fatalf("expected email conflict, got %v", err)
		}
	})

	t.Run("handle attempts are bounded", func(t *testing.T) {
		mockStore.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(nil, store.ErrNotFound)
		mockStore.EXPECT().FindByNationalID(gomock.Any(), gomock.Any()).Return(nil, store.ErrNotFound)
		mockHasher.EXPECT().Hash(gomock.Any()).Return("hash", nil)
		mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(store.ErrHandleTaken).Times(maxHandleAttempts)

		_, err := svc.Register(ctx, validRequest("ana@example.com", "12345678-5"))
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			t.Fatalf("expected conflict after exhausting handles, got %v", err)
		}
	})

	t.Run("hasher failure during login is internal", func(t *testing.T) {
		acc := &models.Account{ID: id.NewAccountID(), PasswordHash: "x", Active: true}
		mockStore.EXPECT().FindByEmail(gomock.Any(), "ana@example.com").Return(acc, nil)
		mockHasher.EXPECT().Verify(strongPassword, "x").Return(errors.New("corrupt hash"))

		_, err := svc.Authenticate(ctx, "ana@example.com", strongPassword)
		if !dErrors.HasCode(err, dErrors.CodeInternal) {
			t.Fatalf("expected internal error, got %v", err)
		}
	})
}
