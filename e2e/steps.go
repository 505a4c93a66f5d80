package e2e

import (
	"github.com/cucumber/godog"

	"biblioteca/e2e/steps/accounts"
	"biblioteca/e2e/steps/common"
	"biblioteca/e2e/steps/lending"
	"biblioteca/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background, generic requests and assertions
	common.RegisterSteps(ctx, tc)

	// Registration, login and staff management
	accounts.RegisterSteps(ctx, tc)

	// Catalog, borrowing and returns
	lending.RegisterSteps(ctx, tc)

	// Login throttling
	ratelimit.RegisterSteps(ctx, tc)
}
