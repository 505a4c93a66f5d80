package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetLastResponseStatus() int
}

// RegisterSteps registers login throttling steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I attempt (\d+) logins as "([^"]*)" with a wrong password$`, steps.attemptLogins)
	ctx.Step(`^some attempts should be rejected with (\d+)$`, steps.someRejectedWith)
	ctx.Step(`^no attempt should succeed$`, steps.noneSucceeded)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
}

func (s *ratelimitSteps) attemptLogins(ctx context.Context, n int, login string) error {
	s.statuses = s.statuses[:0]
	for range n {
		if err := s.tc.POST("/auth/login", map[string]string{"login": login, "password": "Wrong-pass1"}); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) someRejectedWith(ctx context.Context, status int) error {
	for _, got := range s.statuses {
		if got == status {
			return nil
		}
	}
	return fmt.Errorf("no attempt returned %d: %v", status, s.statuses)
}

func (s *ratelimitSteps) noneSucceeded(ctx context.Context) error {
	for _, got := range s.statuses {
		if got == 200 {
			return fmt.Errorf("an attempt succeeded: %v", s.statuses)
		}
	}
	return nil
}
