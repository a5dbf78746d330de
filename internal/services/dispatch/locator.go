// Package dispatch resolves business ids inside the authenticated app and
// calls the remote dispatch endpoint with the captured credential.
package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
	"github.com/ternarybob/sessionbroker/internal/services/humanoid"
)

// Locator searches the embedded app for a resource and reads its internal
// reference from the detail page URL
type Locator struct {
	selectors common.SelectorsConfig
	pattern   *regexp.Regexp
	timeout   time.Duration
	pacing    models.PacingPolicy
	logger    arbor.ILogger
}

// NewLocator creates a locator. The pattern must have one capture group.
func NewLocator(target common.TargetConfig, timeout time.Duration, pacing models.PacingPolicy, logger arbor.ILogger) (*Locator, error) {
	pattern, err := regexp.Compile(target.ReferencePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid reference pattern: %w", err)
	}
	if pattern.NumSubexp() < 1 {
		return nil, fmt.Errorf("reference pattern %q has no capture group", target.ReferencePattern)
	}
	return &Locator{
		selectors: target.Selectors,
		pattern:   pattern,
		timeout:   timeout,
		pacing:    pacing,
		logger:    logger,
	}, nil
}

// Locate finds resourceID in the app's search and follows its row to the
// detail page
func (l *Locator) Locate(ctx context.Context, page interfaces.Page, resourceID string) (models.ResourceReference, error) {
	sel := l.selectors
	pacer := humanoid.New(l.pacing, 0)

	frame, err := page.Frame(ctx, sel.AppFrame, l.timeout)
	if err != nil {
		return models.ResourceReference{}, models.NewError(models.KindResourceNotFound, "app frame not available", err)
	}

	if err := frame.WaitVisible(ctx, sel.Search, l.timeout); err != nil {
		return models.ResourceReference{}, models.NewError(models.KindResourceNotFound, "search field not available", err)
	}
	if err := frame.Click(ctx, sel.Search); err != nil {
		return models.ResourceReference{}, models.NewError(models.KindResourceNotFound, "search field not interactable", err)
	}
	if err := frame.Clear(ctx, sel.Search); err != nil {
		l.logger.Debug().Err(err).Msg("Failed to clear search field")
	}
	if err := pacer.Type(ctx, frame, sel.Search, resourceID); err != nil {
		return models.ResourceReference{}, models.NewError(models.KindResourceNotFound, "typing search query failed", err)
	}
	if err := frame.SendKeys(ctx, sel.Search, kb.Enter); err != nil {
		return models.ResourceReference{}, models.NewError(models.KindResourceNotFound, "submitting search failed", err)
	}
	l.logger.Debug().Str("resource_id", resourceID).Msg("Search submitted")

	if err := frame.WaitContains(ctx, sel.ResultsContainer, resourceID, l.timeout); err != nil {
		return models.ResourceReference{}, models.NewError(models.KindResourceNotFound,
			fmt.Sprintf("%s not listed in search results", resourceID), err)
	}

	before, err := page.CurrentURL(ctx)
	if err != nil {
		return models.ResourceReference{}, models.NewError(models.KindReferenceExtractionFailed, "could not read page location", err)
	}
	if err := frame.ClickContaining(ctx, sel.ResultLink, resourceID); err != nil {
		return models.ResourceReference{}, models.NewError(models.KindResourceNotFound,
			fmt.Sprintf("no result link for %s", resourceID), err)
	}

	detail, err := page.WaitURLChange(ctx, before, l.timeout)
	if err != nil {
		return models.ResourceReference{}, models.NewError(models.KindReferenceExtractionFailed, "detail page did not open", err)
	}

	ref, err := l.Extract(detail)
	if err != nil {
		return models.ResourceReference{}, err
	}
	l.logger.Info().
		Str("resource_id", resourceID).
		Str("reference", ref).
		Msg("Resource located")
	return models.ResourceReference{ResourceID: resourceID, Reference: ref}, nil
}

// Extract pulls the reference out of a detail page URL
func (l *Locator) Extract(url string) (string, error) {
	m := l.pattern.FindStringSubmatch(url)
	if len(m) < 2 || m[1] == "" {
		return "", models.NewError(models.KindReferenceExtractionFailed,
			fmt.Sprintf("no reference in %s", url), nil)
	}
	return m[1], nil
}
