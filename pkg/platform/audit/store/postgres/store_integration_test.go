//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "biblioteca/pkg/domain"
	audit "biblioteca/pkg/platform/audit"
	auditpostgres "biblioteca/pkg/platform/audit/store/postgres"
	"biblioteca/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = auditpostgres.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *AuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	accountID := id.NewAccountID()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	events := []audit.Event{
		{Category: audit.CategoryCompliance, Timestamp: base, AccountID: accountID, Subject: accountID.String(), Action: string(audit.EventAccountRegistered)},
		{Category: audit.CategorySecurity, Timestamp: base.Add(time.Minute), AccountID: accountID, Subject: accountID.String(), Action: string(audit.EventLoginSucceeded), Device: "Chrome on Linux"},
		{Category: audit.CategorySecurity, Timestamp: base.Add(2 * time.Minute), Action: string(audit.EventLoginFailed), Reason: "unknown_login"},
	}
	for _, e := range events {
		s.Require().NoError(s.store.Append(ctx, e))
	}

	mine, err := s.store.ListByAccount(ctx, accountID)
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(string(audit.EventAccountRegistered), mine[0].Action)
	s.Equal("Chrome on Linux", mine[1].Device)

	recent, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(string(audit.EventLoginFailed), recent[0].Action)
	s.True(recent[0].AccountID.IsNil())
	s.Equal("unknown_login", recent[0].Reason)
}
