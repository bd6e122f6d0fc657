package e2e

import (
	"github.com/cucumber/godog"

	"ssot/e2e/steps/common"
	"ssot/e2e/steps/resolution"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	resolution.RegisterSteps(ctx, tc)
}
