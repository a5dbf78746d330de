package session

import (
	"context"
	"time"

	"github.com/chromedp/chromedp/kb"

	"github.com/ternarybob/sessionbroker/internal/models"
	"github.com/ternarybob/sessionbroker/internal/services/classify"
	"github.com/ternarybob/sessionbroker/internal/services/humanoid"
)

const challengeFrameWait = 3 * time.Second

// interactiveLogin fills and submits the login form. A bounce back to the
// form gets exactly one remediation cycle; a second bounce is fatal.
func (r *run) interactiveLogin(ctx context.Context) error {
	cfg := r.engine.config
	sel := cfg.Target.Selectors
	policy := r.pacer.Policy()

	if cfg.WarmUpHome && cfg.Target.HomeURL != "" {
		if err := r.page.Navigate(ctx, cfg.Target.HomeURL); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Debug().Err(err).Msg("Home page warm-up failed, continuing")
		} else if err := r.pacer.Browse(ctx, r.page); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := r.page.Navigate(ctx, cfg.Target.LoginURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return models.NewError(models.KindAuthenticationFailed, "login page unreachable", err)
	}
	if err := r.pacer.Pause(ctx, policy.Reading); err != nil {
		return err
	}

	if err := r.page.WaitVisible(ctx, sel.Email, 0); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The login route may bounce a still-valid browser session to the app
		if state := r.classify(ctx); state == models.PageAuthenticated {
			r.logger.Info().Msg("Login form absent and page is signed in, skipping credentials")
			return nil
		}
		return models.NewError(models.KindAuthenticationFailed, "login form not found", err)
	}

	if err := r.submitCredentials(ctx); err != nil {
		return err
	}
	if !r.botRedirected(ctx) {
		return nil
	}

	r.logger.Warn().Msg("Redirected back to login after submit, remediating once")
	if err := r.page.Clear(ctx, sel.Email); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to clear email field")
	}
	if err := r.page.Clear(ctx, sel.Password); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to clear password field")
	}
	if err := r.pacer.Browse(ctx, r.page); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err := r.pacer.Pause(ctx, policy.Remediation); err != nil {
		return err
	}

	if err := r.submitCredentials(ctx); err != nil {
		return err
	}
	if r.botRedirected(ctx) {
		return models.NewError(models.KindAuthenticationFailed, "redirected to login again after remediation", nil)
	}
	return nil
}

// submitCredentials types the identity into the form and submits it
func (r *run) submitCredentials(ctx context.Context) error {
	cfg := r.engine.config
	sel := cfg.Target.Selectors
	policy := r.pacer.Policy()

	if err := r.fill(ctx, sel.Email, cfg.Identity.Email); err != nil {
		return err
	}
	if err := r.pacer.Pause(ctx, policy.BetweenFields); err != nil {
		return err
	}
	if err := r.fill(ctx, sel.Password, cfg.Identity.Password); err != nil {
		return err
	}
	if err := r.pacer.Pause(ctx, policy.BeforeSubmit); err != nil {
		return err
	}

	r.handleChallenge(ctx)

	if err := r.pacer.MoveTo(ctx, r.page, sel.Submit); err != nil && ctx.Err() == nil {
		r.logger.Debug().Err(err).Msg("Pointer move to submit failed")
	}
	if err := r.page.SubmitAndWait(ctx, sel.Submit, cfg.SubmitTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn().Err(err).Msg("No navigation after login submit")
	}
	return nil
}

// fill moves to, focuses and types into a form field
func (r *run) fill(ctx context.Context, selector, value string) error {
	if err := r.pacer.MoveTo(ctx, r.page, selector); err != nil && ctx.Err() == nil {
		r.logger.Debug().Err(err).Str("selector", selector).Msg("Pointer move failed")
	}
	if err := r.page.Click(ctx, selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return models.NewError(models.KindAuthenticationFailed, "form field not interactable: "+selector, err)
	}
	if err := r.pacer.Type(ctx, r.page, selector, value); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return models.NewError(models.KindAuthenticationFailed, "typing into "+selector+" failed", err)
	}
	return nil
}

// botRedirected reports whether the submit landed back on the login form
func (r *run) botRedirected(ctx context.Context) bool {
	url, err := r.page.CurrentURL(ctx)
	if err != nil {
		return false
	}
	if !classify.IsLoginURL(url, r.engine.rules.LoginURLPatterns) {
		return false
	}
	return r.page.Exists(ctx, r.engine.config.Target.Selectors.Password)
}

// handleChallenge probes for a challenge widget before a submission and
// ticks its checkbox when one is offered. Image puzzles are not solved.
func (r *run) handleChallenge(ctx context.Context) {
	html, err := r.page.HTML(ctx)
	if err != nil {
		return
	}
	sel := r.engine.config.Target.Selectors
	if !classify.ChallengePresent(html, sel.Challenge) {
		return
	}
	r.logger.Warn().Msg("Challenge widget present before submit")

	if sel.ChallengeFrame == "" {
		return
	}
	frame, err := r.page.Frame(ctx, sel.ChallengeFrame, challengeFrameWait)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Challenge frame not reachable")
		return
	}
	for _, box := range sel.ChallengeBoxes {
		if err := frame.WaitVisible(ctx, box, time.Second); err != nil {
			continue
		}
		if err := frame.Click(ctx, box); err != nil {
			continue
		}
		r.logger.Info().Str("selector", box).Msg("Challenge checkbox clicked")
		if err := r.pacer.Pause(ctx, r.pacer.Policy().Reading); err != nil {
			return
		}
		return
	}
}

// secondFactor looks for a one-time code field and submits the code.
// Accounts without a second factor pass straight through.
func (r *run) secondFactor(ctx context.Context) error {
	cfg := r.engine.config
	sel := cfg.Target.Selectors

	input, found, err := r.firstVisible(ctx, sel.TwoFactorInputs, cfg.TwoFactorProbe)
	if err != nil {
		return err
	}
	if !found {
		r.logger.Debug().Msg("No second factor prompt")
		return nil
	}
	r.enter(models.StateTwoFactorRequired)

	code, err := r.engine.codes.Generate(cfg.Identity.TOTPSecret)
	if err != nil {
		return err
	}

	r.enter(models.StateTwoFactorSubmit)
	if err := r.fill(ctx, input, code); err != nil {
		return err
	}
	if err := r.pacer.Pause(ctx, r.pacer.Policy().BeforeSubmit); err != nil {
		return err
	}

	r.handleChallenge(ctx)

	if sel.TwoFactorSubmit != "" && r.page.Exists(ctx, sel.TwoFactorSubmit) {
		if err := r.page.SubmitAndWait(ctx, sel.TwoFactorSubmit, cfg.SubmitTimeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn().Err(err).Msg("No navigation after second factor submit")
		}
	} else {
		if err := r.page.SendKeys(ctx, input, kb.Enter); err != nil {
			return models.NewError(models.KindAuthenticationFailed, "second factor submit failed", err)
		}
		if err := humanoid.Sleep(ctx, cfg.SettleDelay); err != nil {
			return err
		}
	}

	r.logger.Info().Msg("Second factor submitted")
	return nil
}

// firstVisible returns the first selector that becomes visible, trying each in
// order with a bounded wait
func (r *run) firstVisible(ctx context.Context, selectors []string, each time.Duration) (string, bool, error) {
	for _, s := range selectors {
		if err := r.page.WaitVisible(ctx, s, each); err == nil {
			return s, true, nil
		}
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
	}
	return "", false, nil
}
