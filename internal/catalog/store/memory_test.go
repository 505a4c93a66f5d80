package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"biblioteca/internal/catalog/models"
	id "biblioteca/pkg/domain"
	"biblioteca/pkg/platform/sentinel"
)

type ItemStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestItemStoreSuite(t *testing.T) {
	suite.Run(t, new(ItemStoreSuite))
}

func (s *ItemStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *ItemStoreSuite) add(title, genre string, copies int) *models.Item {
	item, err := models.NewItem(id.NewItemID(), title, "Autor", genre, copies, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, item))
	return item
}

func (s *ItemStoreSuite) TestReserveAndRelease() {
	item := s.add("Rayuela", "Novela", 1)

	s.Require().NoError(s.store.ReserveCopy(s.ctx, item.ID))
	s.ErrorIs(s.store.ReserveCopy(s.ctx, item.ID), sentinel.ErrExhausted)

	found, err := s.store.FindByID(s.ctx, item.ID)
	s.Require().NoError(err)
	s.Equal(0, found.AvailableCopies)

	s.Require().NoError(s.store.ReleaseCopy(s.ctx, item.ID))
	s.ErrorIs(s.store.ReleaseCopy(s.ctx, item.ID), ErrAllCopiesIn)

	s.ErrorIs(s.store.ReserveCopy(s.ctx, id.NewItemID()), ErrNotFound)
	s.ErrorIs(s.store.ReleaseCopy(s.ctx, id.NewItemID()), ErrNotFound)
}

func (s *ItemStoreSuite) TestConcurrentReserveNeverOversells() {
	item := s.add("Ficciones", "Cuento", 3)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.store.ReserveCopy(s.ctx, item.ID) == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(3), ok.Load())
	found, _ := s.store.FindByID(s.ctx, item.ID)
	s.Equal(0, found.AvailableCopies)
}

func (s *ItemStoreSuite) TestListAndCounts() {
	a := s.add("Rayuela", "Novela", 1)
	s.add("Cien años de soledad", "Novela", 2)
	s.add("Ficciones", "Cuento", 1)
	s.add("Atlas", "Referencia", 1)
	s.Require().NoError(s.store.ReserveCopy(s.ctx, a.ID))

	all, err := s.store.List(s.ctx, false)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	s.Equal("Atlas", all[0].Title)

	available, err := s.store.List(s.ctx, true)
	s.Require().NoError(err)
	s.Len(available, 3)

	n, err := s.store.CountItems(s.ctx)
	s.Require().NoError(err)
	s.Equal(4, n)

	byGenre, err := s.store.CountByGenre(s.ctx)
	s.Require().NoError(err)
	s.Equal([]models.GenreCount{
		{Genre: "Novela", Count: 2},
		{Genre: "Cuento", Count: 1},
		{Genre: "Referencia", Count: 1},
	}, byGenre)
}
