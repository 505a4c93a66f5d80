package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"biblioteca/internal/accounts/models"
	id "biblioteca/pkg/domain"
	"biblioteca/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Constraint names from schema.sql.
const (
	constraintHandle     = "accounts_handle_key"
	constraintEmail      = "accounts_email_key"
	constraintNationalID = "profiles_national_id_key"
)

const selectAccount = `
	SELECT a.id, a.handle, a.email, a.password_hash, a.first_name, a.last_name,
		a.active, a.created_at, a.updated_at,
		p.role, p.national_id, p.address, p.phone
	FROM accounts a
	LEFT JOIN profiles p ON p.account_id = a.id`

// PostgresStore persists accounts and profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the account and its profile in one transaction. Unique
// violations are reported as ErrHandleTaken, ErrEmailTaken or
// ErrNationalIDTaken.
func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		exec := tx.ExecutorFor(ctx, s.db)
		_, err := exec.ExecContext(ctx, `
			INSERT INTO accounts (id, handle, email, password_hash, first_name, last_name, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuidArg(account.ID), account.Handle, account.Email, account.PasswordHash,
			account.FirstName, account.LastName, account.Active, account.CreatedAt, account.UpdatedAt,
		)
		if err != nil {
			return translateWriteErr("insert account", err)
		}
		return s.upsertProfile(ctx, exec, account)
	})
}

// Update writes every mutable column of the account and its profile.
func (s *PostgresStore) Update(ctx context.Context, account *models.Account) error {
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		return s.update(ctx, tx.ExecutorFor(ctx, s.db), account)
	})
}

// Execute locks the account row with SELECT ... FOR UPDATE, runs validate and
// mutate, and writes the result back in the same transaction.
func (s *PostgresStore) Execute(ctx context.Context, accountID id.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error) {
	var out *models.Account
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		exec := tx.ExecutorFor(ctx, s.db)
		account, err := scanAccount(exec.QueryRowContext(ctx, selectAccount+` WHERE a.id = $1 FOR UPDATE OF a`, uuidArg(accountID)))
		if err != nil {
			return err
		}
		if err := validate(account); err != nil {
			return err
		}
		mutate(account)
		if err := s.update(ctx, exec, account); err != nil {
			return err
		}
		out = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	return s.findOne(ctx, ` WHERE a.id = $1`, uuidArg(accountID))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.findOne(ctx, ` WHERE lower(a.email) = lower($1)`, email)
}

func (s *PostgresStore) FindByHandle(ctx context.Context, handle string) (*models.Account, error) {
	return s.findOne(ctx, ` WHERE a.handle = $1`, handle)
}

func (s *PostgresStore) FindByNationalID(ctx context.Context, nationalID string) (*models.Account, error) {
	return s.findOne(ctx, ` WHERE p.national_id = $1`, nationalID)
}

// FindByIDs loads several accounts with a single ANY($1) query.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.AccountID) (map[id.AccountID]*models.Account, error) {
	out := make(map[id.AccountID]*models.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, accountID := range ids {
		raw[i] = accountID.String()
	}
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, selectAccount+` WHERE a.id = ANY($1::uuid[])`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find accounts by ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, selectAccount+` ORDER BY a.created_at, a.handle`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var out []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	return scanAccount(tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, selectAccount+where, arg))
}

func (s *PostgresStore) update(ctx context.Context, exec tx.Executor, account *models.Account) error {
	res, err := exec.ExecContext(ctx, `
		UPDATE accounts
		SET handle = $2, email = $3, password_hash = $4, first_name = $5, last_name = $6,
			active = $7, updated_at = $8
		WHERE id = $1`,
		uuidArg(account.ID), account.Handle, account.Email, account.PasswordHash,
		account.FirstName, account.LastName, account.Active, account.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr("update account", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return s.upsertProfile(ctx, exec, account)
}

func (s *PostgresStore) upsertProfile(ctx context.Context, exec tx.Executor, account *models.Account) error {
	if account.Profile == nil {
		return nil
	}
	p := account.Profile
	_, err := exec.ExecContext(ctx, `
		INSERT INTO profiles (account_id, role, national_id, address, phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE
		SET role = EXCLUDED.role, national_id = EXCLUDED.national_id,
			address = EXCLUDED.address, phone = EXCLUDED.phone`,
		uuidArg(account.ID), string(p.Role), p.NationalID, p.Address, p.Phone,
	)
	if err != nil {
		return translateWriteErr("upsert profile", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a                                models.Account
		rawID                            string
		role, nationalID, address, phone sql.NullString
	)
	err := row.Scan(&rawID, &a.Handle, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.Active, &a.CreatedAt, &a.UpdatedAt, &role, &nationalID, &address, &phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	accountID, err := id.ParseAccountID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan account id: %w", err)
	}
	a.ID = accountID
	if role.Valid {
		a.Profile = &models.Profile{
			AccountID:  accountID,
			Role:       id.Role(role.String),
			NationalID: nationalID.String,
			Address:    address.String,
			Phone:      phone.String,
		}
	}
	return &a, nil
}

func translateWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintHandle:
			return ErrHandleTaken
		case constraintEmail:
			return ErrEmailTaken
		case constraintNationalID:
			return ErrNationalIDTaken
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func uuidArg(accountID id.AccountID) string {
	return accountID.String()
}
