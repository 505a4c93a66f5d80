package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"biblioteca/internal/catalog/models"
	id "biblioteca/pkg/domain"
)

type InMemory struct {
	mu    sync.RWMutex
	items map[id.ItemID]*models.Item
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[id.ItemID]*models.Item)}
}

func (s *InMemory) Create(_ context.Context, item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *item
	s.items[item.ID] = &c
	return nil
}

func (s *InMemory) FindByID(_ context.Context, itemID id.ItemID) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *item
	return &c, nil
}

func (s *InMemory) FindByIDs(_ context.Context, ids []id.ItemID) (map[id.ItemID]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.ItemID]*models.Item, len(ids))
	for _, itemID := range ids {
		if item, ok := s.items[itemID]; ok {
			c := *item
			out[itemID] = &c
		}
	}
	return out, nil
}

// List returns items ordered by title. With availableOnly set, items with no
// copies on the shelf are skipped.
func (s *InMemory) List(_ context.Context, availableOnly bool) ([]*models.Item, error) {
	s.mu.RLock()
	out := make([]*models.Item, 0, len(s.items))
	for _, item := range s.items {
		if availableOnly && !item.IsAvailable() {
			continue
		}
		c := *item
		out = append(out, &c)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Item) int {
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

// ReserveCopy takes one copy off the shelf if any is left.
func (s *InMemory) ReserveCopy(_ context.Context, itemID id.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return ErrNotFound
	}
	if item.AvailableCopies <= 0 {
		return ErrNoCopies
	}
	item.AvailableCopies--
	return nil
}

// ReleaseCopy puts one copy back on the shelf.
func (s *InMemory) ReleaseCopy(_ context.Context, itemID id.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return ErrNotFound
	}
	if item.AvailableCopies >= item.TotalCopies {
		return ErrAllCopiesIn
	}
	item.AvailableCopies++
	return nil
}

func (s *InMemory) CountItems(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// CountByGenre returns item counts per genre, most populated first, ties
// broken by genre name.
func (s *InMemory) CountByGenre(_ context.Context) ([]models.GenreCount, error) {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, item := range s.items {
		counts[item.Genre]++
	}
	s.mu.RUnlock()

	out := make([]models.GenreCount, 0, len(counts))
	for genre, n := range counts {
		out = append(out, models.GenreCount{Genre: genre, Count: n})
	}
	SortGenreCounts(out)
	return out, nil
}

// SortGenreCounts orders by count descending, then genre ascending.
func SortGenreCounts(counts []models.GenreCount) {
	slices.SortFunc(counts, func(a, b models.GenreCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Genre, b.Genre)
	})
}
