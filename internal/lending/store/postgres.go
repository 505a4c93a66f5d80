package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"biblioteca/internal/lending/models"
	id "biblioteca/pkg/domain"
	"biblioteca/pkg/platform/tx"
)

const selectLoan = `
	SELECT id, account_id, item_id, borrowed_on, due_on, returned_on, fine::bigint
	FROM loans`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, loan *models.Loan) error {
	_, err := tx.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO loans (id, account_id, item_id, borrowed_on, due_on, returned_on, fine)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		loan.ID.String(), loan.AccountID.String(), loan.ItemID.String(),
		loan.BorrowedOn, loan.DueOn, loan.ReturnedOn, int64(loan.Fine),
	)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, loanID id.LoanID) (*models.Loan, error) {
	return scanLoan(tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, selectLoan+` WHERE id = $1`, loanID.String()))
}

// Execute locks the loan row with SELECT ... FOR UPDATE so concurrent
// returns of the same loan are serialized; the second one sees RETURNED.
func (s *PostgresStore) Execute(ctx context.Context, loanID id.LoanID, validate func(*models.Loan) error, mutate func(*models.Loan)) (*models.Loan, error) {
	var out *models.Loan
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		exec := tx.ExecutorFor(ctx, s.db)
		loan, err := scanLoan(exec.QueryRowContext(ctx, selectLoan+` WHERE id = $1 FOR UPDATE`, loanID.String()))
		if err != nil {
			return err
		}
		if err := validate(loan); err != nil {
			return err
		}
		mutate(loan)
		if _, err := exec.ExecContext(ctx, `
			UPDATE loans SET returned_on = $2, fine = $3 WHERE id = $1`,
			loan.ID.String(), loan.ReturnedOn, int64(loan.Fine),
		); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		out = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListActiveByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Loan, error) {
	return s.query(ctx, selectLoan+`
		WHERE account_id = $1 AND returned_on IS NULL
		ORDER BY due_on, borrowed_on`, accountID.String())
}

func (s *PostgresStore) ListReturnedByAccount(ctx context.Context, accountID id.AccountID, limit int) ([]*models.Loan, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, selectLoan+`
		WHERE account_id = $1 AND returned_on IS NOT NULL
		ORDER BY returned_on DESC, borrowed_on DESC
		LIMIT $2`, accountID.String(), limit)
}

func (s *PostgresStore) ListFinedByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Loan, error) {
	return s.query(ctx, selectLoan+`
		WHERE account_id = $1 AND (returned_on IS NULL OR fine > 0)
		ORDER BY due_on, borrowed_on`, accountID.String())
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Loan, error) {
	return s.query(ctx, selectLoan+` WHERE returned_on IS NULL ORDER BY due_on, borrowed_on`)
}

func (s *PostgresStore) CountActive(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM loans WHERE returned_on IS NULL`)
}

func (s *PostgresStore) CountOverdue(ctx context.Context, asOf time.Time) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM loans WHERE returned_on IS NULL AND due_on < $1`, models.DateOf(asOf))
}

func (s *PostgresStore) SumFines(ctx context.Context) (models.Money, error) {
	var total int64
	if err := tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, `SELECT COALESCE(SUM(fine), 0)::bigint FROM loans`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum fines: %w", err)
	}
	return models.Money(total), nil
}

func (s *PostgresStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count loans: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Loan, error) {
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()
	var out []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var (
		loan                       models.Loan
		rawID, rawAccount, rawItem string
		returnedOn                 sql.NullTime
		fine                       int64
	)
	err := row.Scan(&rawID, &rawAccount, &rawItem, &loan.BorrowedOn, &loan.DueOn, &returnedOn, &fine)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan loan: %w", err)
	}
	if loan.ID, err = id.ParseLoanID(rawID); err != nil {
		return nil, fmt.Errorf("scan loan id: %w", err)
	}
	if loan.AccountID, err = id.ParseAccountID(rawAccount); err != nil {
		return nil, fmt.Errorf("scan loan account id: %w", err)
	}
	if loan.ItemID, err = id.ParseItemID(rawItem); err != nil {
		return nil, fmt.Errorf("scan loan item id: %w", err)
	}
	loan.BorrowedOn = models.DateOf(loan.BorrowedOn)
	loan.DueOn = models.DateOf(loan.DueOn)
	if returnedOn.Valid {
		r := models.DateOf(returnedOn.Time)
		loan.ReturnedOn = &r
	}
	loan.Fine = models.Money(fine)
	return &loan, nil
}
