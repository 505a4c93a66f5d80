package authz

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biblioteca/internal/accounts/models"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/platform/audit/publisher"
	auditmemory "biblioteca/pkg/platform/audit/store/memory"
	"biblioteca/pkg/testutil"
)

func accountWithRole(role id.Role) *models.Account {
	acc, err := models.NewAccount(id.NewAccountID(), "ana@example.com", "hash", "Ana", "Rojas",
		models.Profile{Role: role, NationalID: "123456785"}, time.Now())
	if err != nil {
		panic(err)
	}
	return acc
}

func TestGate_Check(t *testing.T) {
	store := auditmemory.NewInMemoryStore()
	gate := NewGate(WithAuditPublisher(publisher.NewPublisher(store)))
	ctx := context.Background()

	noProfile := accountWithRole(id.RoleReader)
	noProfile.Profile = nil
	inactive := accountWithRole(id.RoleAdmin)
	inactive.Active = false

	tests := []struct {
		name   string
		caller Caller
		roles  []id.Role
		code   dErrors.Code
	}{
		{"anonymous needs login", Anonymous(), nil, dErrors.CodeUnauthorized},
		{"anonymous with roles is still unauthenticated", Anonymous(), []id.Role{id.RoleReader}, dErrors.CodeUnauthorized},
		{"inactive account is anonymous", CallerOf(inactive), []id.Role{id.RoleAdmin}, dErrors.CodeUnauthorized},
		{"authenticated only", CallerOf(accountWithRole(id.RoleReader)), nil, ""},
		{"missing profile is forbidden", CallerOf(noProfile), []id.Role{id.RoleReader}, dErrors.CodeForbidden},
		{"role outside the set", CallerOf(accountWithRole(id.RoleReader)), []id.Role{id.RoleLibrarian, id.RoleAdmin}, dErrors.CodeForbidden},
		{"role inside the set", CallerOf(accountWithRole(id.RoleLibrarian)), []id.Role{id.RoleLibrarian, id.RoleAdmin}, ""},
		{"missing profile without roles passes", CallerOf(noProfile), nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Check(ctx, tt.caller, tt.roles...)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, tt.code), "expected %s, got %v", tt.code, err)
		})
	}

	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, e := range recent {
		assert.Equal(t, string(audit.EventAccessDenied), e.Action)
		assert.Equal(t, audit.CategorySecurity, e.Category)
	}
}

func TestOperations(t *testing.T) {
	gate := NewGate()
	ctx := context.Background()
	calls := 0
	echo := func(_ context.Context, caller Caller, req string) (string, error) {
		calls++
		return req + ":" + caller.ID().String(), nil
	}

	t.Run("authenticated", func(t *testing.T) {
		op := Authenticated(gate, echo)

		_, err := op(ctx, Anonymous(), "x")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Zero(t, calls)

		reader := CallerOf(accountWithRole(id.RoleReader))
		res, err := op(ctx, reader, "x")
		require.NoError(t, err)
		assert.Equal(t, "x:"+reader.ID().String(), res)
		assert.Equal(t, 1, calls)
	})

	t.Run("authorize", func(t *testing.T) {
		calls = 0
		op := Authorize(gate, echo, id.RoleAdmin)

		_, err := op(ctx, Anonymous(), "x")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

		_, err = op(ctx, CallerOf(accountWithRole(id.RoleLibrarian)), "x")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		assert.Zero(t, calls)

		_, err = op(ctx, CallerOf(accountWithRole(id.RoleAdmin)), "x")
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestGate_Permits(t *testing.T) {
	store := auditmemory.NewInMemoryStore()
	gate := NewGate(WithAuditPublisher(publisher.NewPublisher(store)))

	librarian := CallerOf(accountWithRole(id.RoleLibrarian))
	noProfile := accountWithRole(id.RoleReader)
	noProfile.Profile = nil

	assert.True(t, gate.Permits(librarian, id.RoleLibrarian, id.RoleAdmin))
	assert.True(t, gate.Permits(librarian))
	assert.False(t, gate.Permits(librarian, id.RoleAdmin))
	assert.False(t, gate.Permits(CallerOf(noProfile), id.RoleReader))
	assert.False(t, gate.Permits(Anonymous(), id.RoleReader))
	assert.False(t, gate.Permits(Anonymous()))

	recent, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "Permits must not record denials")
}

type failingPublisher struct{ err error }

func (p failingPublisher) Emit(context.Context, audit.Event) error { return p.err }

func TestGate_DenialEmitFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	gate := NewGate(WithLogger(logger), WithAuditPublisher(failingPublisher{err: publisher.ErrBufferFull}))

	err := gate.Check(context.Background(), CallerOf(accountWithRole(id.RoleReader)), id.RoleAdmin)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Contains(t, buf.String(), "failed to record access denial")
	assert.Contains(t, buf.String(), publisher.ErrBufferFull.Error())
}

type resolverFunc func(ctx context.Context, accountID id.AccountID) (*models.Account, error)

func (f resolverFunc) Get(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	return f(ctx, accountID)
}

func TestMiddleware(t *testing.T) {
	gate := NewGate()
	admin := accountWithRole(id.RoleAdmin)
	reader := accountWithRole(id.RoleReader)
	accounts := map[id.AccountID]*models.Account{admin.ID: admin, reader.ID: reader}
	brokenID := id.NewAccountID()
	resolver := resolverFunc(func(_ context.Context, accountID id.AccountID) (*models.Account, error) {
		if accountID == brokenID {
			return nil, errors.New("connection refused")
		}
		if acc, ok := accounts[accountID]; ok {
			return acc, nil
		}
		return nil, dErrors.New(dErrors.CodeNotFound, "Usuario no encontrado")
	})

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := ResolveCaller(resolver, slog.New(slog.NewTextHandler(io.Discard, nil)))(RequireRoles(gate, id.RoleAdmin)(ok))

	serve := func(accountID string) *httptest.ResponseRecorder {
		req := testutil.WithAccount(testutil.NewRequest(t, http.MethodGet, "/admin"), accountID)
		return testutil.DoRequest(handler, req)
	}

	testutil.AssertError(t, serve(""), http.StatusUnauthorized, "unauthorized")
	testutil.AssertError(t, serve(id.NewAccountID().String()), http.StatusUnauthorized, "unauthorized")
	testutil.AssertError(t, serve(reader.ID.String()), http.StatusForbidden, "forbidden")
	testutil.AssertStatus(t, serve(admin.ID.String()), http.StatusNoContent)
	testutil.AssertError(t, serve(brokenID.String()), http.StatusInternalServerError, "internal_error")
}
