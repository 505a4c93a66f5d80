package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"biblioteca/internal/catalog/models"
	id "biblioteca/pkg/domain"
	"biblioteca/pkg/platform/tx"
)

const selectItem = `
	SELECT id, title, author, genre, total_copies, available_copies, created_at
	FROM items`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, item *models.Item) error {
	_, err := tx.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO items (id, title, author, genre, total_copies, available_copies, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID.String(), item.Title, item.Author, item.Genre, item.TotalCopies, item.AvailableCopies, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, itemID id.ItemID) (*models.Item, error) {
	return scanItem(tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, selectItem+` WHERE id = $1`, itemID.String()))
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.ItemID) (map[id.ItemID]*models.Item, error) {
	out := make(map[id.ItemID]*models.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, itemID := range ids {
		raw[i] = itemID.String()
	}
	items, err := s.query(ctx, selectItem+` WHERE id = ANY($1::uuid[])`, pq.Array(raw))
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context, availableOnly bool) ([]*models.Item, error) {
	if availableOnly {
		return s.query(ctx, selectItem+` WHERE available_copies > 0 ORDER BY title, id`)
	}
	return s.query(ctx, selectItem+` ORDER BY title, id`)
}

// ReserveCopy decrements available_copies with a single conditional UPDATE,
// so two borrowers racing for the last copy cannot both succeed.
func (s *PostgresStore) ReserveCopy(ctx context.Context, itemID id.ItemID) error {
	return s.adjust(ctx, itemID, `
		UPDATE items SET available_copies = available_copies - 1
		WHERE id = $1 AND available_copies > 0`, ErrNoCopies)
}

func (s *PostgresStore) ReleaseCopy(ctx context.Context, itemID id.ItemID) error {
	return s.adjust(ctx, itemID, `
		UPDATE items SET available_copies = available_copies + 1
		WHERE id = $1 AND available_copies < total_copies`, ErrAllCopiesIn)
}

func (s *PostgresStore) adjust(ctx context.Context, itemID id.ItemID, query string, unmet error) error {
	exec := tx.ExecutorFor(ctx, s.db)
	res, err := exec.ExecContext(ctx, query, itemID.String())
	if err != nil {
		return fmt.Errorf("adjust item copies: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust item copies rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, itemID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("check item exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return unmet
}

func (s *PostgresStore) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountByGenre(ctx context.Context) ([]models.GenreCount, error) {
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, `
		SELECT genre, COUNT(*) AS n
		FROM items
		GROUP BY genre
		ORDER BY n DESC, genre ASC`)
	if err != nil {
		return nil, fmt.Errorf("count items by genre: %w", err)
	}
	defer rows.Close()
	var out []models.GenreCount
	for rows.Next() {
		var gc models.GenreCount
		if err := rows.Scan(&gc.Genre, &gc.Count); err != nil {
			return nil, fmt.Errorf("scan genre count: %w", err)
		}
		out = append(out, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genre counts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	var out []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		item  models.Item
		rawID string
	)
	err := row.Scan(&rawID, &item.Title, &item.Author, &item.Genre, &item.TotalCopies, &item.AvailableCopies, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	itemID, err := id.ParseItemID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan item id: %w", err)
	}
	item.ID = itemID
	return &item, nil
}
