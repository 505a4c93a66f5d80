//go:build integration

package reporting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	catalogmodels "biblioteca/internal/catalog/models"
	lendingmodels "biblioteca/internal/lending/models"
	"biblioteca/internal/reporting"
	"biblioteca/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *reporting.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.Require().NoError(s.redis.Client.Health(context.Background()))
	s.cache = reporting.NewRedisCache(s.redis.Client.Client, time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	d := &reporting.Dashboard{
		AsOf:         time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
		TotalItems:   6,
		ItemsByGenre: []catalogmodels.GenreCount{{Genre: "Novela", Count: 3}},
		ActiveLoans:  2,
		OverdueLoans: 1,
		TotalFines:   lendingmodels.Money(3000),
	}

	_, ok, err := s.cache.Get(ctx, "dashboard:2024-01-06")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.cache.Set(ctx, "dashboard:2024-01-06", d))
	found, ok, err := s.cache.Get(ctx, "dashboard:2024-01-06")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(d, found)

	ttl, err := s.redis.Client.TTL(ctx, "biblioteca:dashboard:2024-01-06").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)

	s.Require().NoError(s.cache.Invalidate(ctx, "dashboard:2024-01-06"))
	_, ok, err = s.cache.Get(ctx, "dashboard:2024-01-06")
	s.Require().NoError(err)
	s.False(ok)
}
