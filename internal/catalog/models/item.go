package models

import (
	"strings"
	"time"

	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
)

// Item is a catalogued title with a fixed number of physical copies.
//
// Invariants:
//   - 0 <= AvailableCopies <= TotalCopies
//   - Title and Genre are non-empty
type Item struct {
	ID              id.ItemID `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           string    `json:"genre"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsAvailable reports whether at least one copy can be lent.
func (i *Item) IsAvailable() bool {
	return i.AvailableCopies > 0
}

// NewItem builds an item with every copy available.
func NewItem(itemID id.ItemID, title, author, genre string, copies int, now time.Time) (*Item, error) {
	title = strings.TrimSpace(title)
	genre = strings.TrimSpace(genre)
	if itemID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "item id cannot be nil")
	}
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "El título es obligatorio")
	}
	if genre == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "El género es obligatorio")
	}
	if copies < 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "Debe haber al menos una copia")
	}
	return &Item{
		ID:              itemID,
		Title:           title,
		Author:          strings.TrimSpace(author),
		Genre:           genre,
		TotalCopies:     copies,
		AvailableCopies: copies,
		CreatedAt:       now,
	}, nil
}

// GenreCount is one row of the items-by-genre breakdown.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

type CreateItemRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
	Copies int    `json:"copies"`
}
