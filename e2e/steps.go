package e2e

import (
	"github.com/cucumber/godog"

	"gatekeeper/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ratelimit.RegisterSteps(ctx, tc)
}
