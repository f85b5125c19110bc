package service

import (
	"github.com/unclebandit/mailleopard-backend/internal/config"
	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// checkCeiling returns Forbidden when holding n contacts would exceed the plan ceiling.
func checkCeiling(plans config.Plans, plan model.Plan, n int) error {
	if plans.WithinLimit(plan, n) {
		return nil
	}
	return appErrors.NewForbidden(
		"contact limit reached for %s plan (%d). Please upgrade your plan", plan, plans.Limit(plan))
}
