package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/locator"
	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

var (
	passwordField = locator.CSS(`input[type="password"]`)

	usernameFields = []locator.Locator{
		locator.CSS(`input[type="email"]`),
		locator.CSS(`input[name*="email"]`),
		locator.CSS(`input[name*="user"]`),
		locator.CSS(`input[id*="user"]`),
		locator.CSS(`input[autocomplete="username"]`),
	}

	submitButtons = []locator.Locator{
		locator.CSS(`button[type="submit"]`),
		locator.CSS(`input[type="submit"]`),
		locator.TagText("button", "Log in"),
		locator.TagText("button", "Sign in"),
	}
)

// login 页面上有密码框时先登录;没有登录表单视为已登录
func (r *Runner) login(ctx context.Context, rn *run) error {
	page := rn.exec.Page()
	n, err := page.Count(ctx, passwordField)
	if err != nil {
		return fmt.Errorf("probe login form: %w", err)
	}
	if n == 0 {
		logger.Info(ctx, "[Login] no password field on the landing page, skipping login")
		return nil
	}
	rn.session.ShowStatus(ctx, "Signing in")

	plan := []struct {
		action models.Action
		target executor.Target
	}{
		{
			models.Action{Kind: models.ActionFill, Locator: "username", Value: rn.req.Username},
			executor.Target{Class: locator.ClassGeneral, Locators: usernameFields},
		},
		{
			models.Action{Kind: models.ActionFill, Locator: "password", Value: rn.req.Password},
			executor.Target{Class: locator.ClassGeneral, Locators: []locator.Locator{passwordField}},
		},
		{
			models.Action{Kind: models.ActionClick, Locator: "submit"},
			executor.Target{Class: locator.ClassGeneral, Locators: submitButtons},
		},
	}

	for _, p := range plan {
		start := time.Now()
		outcome := rn.exec.Execute(ctx, p.action, p.target)
		r.appendStep(ctx, rn, models.AutomationStep{
			Action:    p.action,
			Outcome:   outcome,
			Note:      LoginNote,
			StartedAt: start,
			Duration:  time.Since(start),
		})
		if !outcome.OK() {
			return fmt.Errorf("login %s %s: %s", p.action.Kind, p.action.Locator, outcome)
		}
	}

	if err := page.WaitForLoadState(ctx, executor.LoadNetworkIdle, r.timeouts.NetworkIdle); err != nil {
		logger.Warn(ctx, "[Login] page did not settle after sign-in: %v", err)
	}
	logger.Info(ctx, "[Login] ✓ signed in as %s", rn.req.Username)
	return nil
}
