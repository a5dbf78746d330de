package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// Page is a chromedp tab owning its browser and allocator
type Page struct {
	ctx             context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	logger          arbor.ILogger

	navTimeout     time.Duration
	submitTimeout  time.Duration
	elementTimeout time.Duration

	closeOnce sync.Once
}

func newPage(ctx context.Context, browserCancel, allocatorCancel context.CancelFunc, config common.BrowserConfig, logger arbor.ILogger) *Page {
	return &Page{
		ctx:             ctx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		logger:          logger,
		navTimeout:      common.ParseDuration(config.NavTimeout, 60*time.Second),
		submitTimeout:   common.ParseDuration(config.SubmitTimeout, 30*time.Second),
		elementTimeout:  common.ParseDuration(config.ElementTimeout, 10*time.Second),
	}
}

// run executes actions on the tab, bounded by timeout and cancelled with ctx
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, timeout)
		defer timeoutCancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) OnRequest(fn func(interfaces.RequestEvent)) func() {
	listenCtx, cancel := context.WithCancel(p.ctx)
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Request == nil {
				return
			}
			fn(interfaces.RequestEvent{
				URL:     e.Request.URL,
				Method:  e.Request.Method,
				Headers: flattenHeaders(e.Request.Headers),
			})
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				p.logger.Debug().Str("url", e.Frame.URL).Msg("Main frame navigated")
			}
		}
	})
	return cancel
}

func flattenHeaders(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.navTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if err := p.run(ctx, p.navTimeout, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, p.elementTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.elementTimeout, chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &html)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}

func (p *Page) Cookies(ctx context.Context) ([]models.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, p.elementTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite.String(),
		})
	}
	return out, nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &exp
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none":
			param.SameSite = network.CookieSameSiteNone
		}
		params = append(params, param)
	}

	if err := p.run(ctx, p.elementTimeout, network.SetCookies(params)); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

func (p *Page) Exists(ctx context.Context, selector string) bool {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
	if err := p.run(ctx, p.elementTimeout, chromedp.Evaluate(expr, &found)); err != nil {
		return false
	}
	return found
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.elementTimeout
	}
	return p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, p.elementTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *Page) SubmitAndWait(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.submitTimeout
	}

	navigated := make(chan struct{}, 1)
	listenCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventFrameNavigated); ok && e.Frame != nil && e.Frame.ParentID == "" {
			select {
			case navigated <- struct{}{}:
			default:
			}
		}
	})

	if err := p.Click(ctx, selector); err != nil {
		return fmt.Errorf("submit %s: %w", selector, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-navigated:
	case <-timer.C:
		return fmt.Errorf("no navigation within %s after submitting %s", timeout, selector)
	case <-ctx.Done():
		return ctx.Err()
	}

	var ready bool
	return p.run(ctx, timeout, chromedp.Poll(`document.readyState === "complete"`, &ready,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(100*time.Millisecond),
	))
}

func (p *Page) SendKeys(ctx context.Context, selector, text string) error {
	return p.run(ctx, p.elementTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *Page) Clear(ctx context.Context, selector string) error {
	return p.run(ctx, p.elementTimeout, chromedp.SetValue(selector, "", chromedp.ByQuery))
}

func (p *Page) WaitURLChange(ctx context.Context, from string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = p.navTimeout
	}
	var changed bool
	expr := fmt.Sprintf(`window.location.href !== %s`, jsString(from))
	if err := p.run(ctx, timeout, chromedp.Poll(expr, &changed,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(200*time.Millisecond),
	)); err != nil {
		return "", fmt.Errorf("url did not change from %s: %w", from, err)
	}
	return p.CurrentURL(ctx)
}

func (p *Page) ElementCenter(ctx context.Context, selector string) (float64, float64, error) {
	var center []float64
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return [r.left + r.width / 2, r.top + r.height / 2];
	})()`, jsString(selector))
	if err := p.run(ctx, p.elementTimeout, chromedp.Evaluate(expr, &center)); err != nil {
		return 0, 0, fmt.Errorf("locate %s: %w", selector, err)
	}
	if len(center) != 2 {
		return 0, 0, fmt.Errorf("element %s not found", selector)
	}
	return center[0], center[1], nil
}

func (p *Page) MoveMouse(ctx context.Context, x, y float64) error {
	return p.run(ctx, p.elementTimeout, chromedp.MouseEvent(input.MouseMoved, x, y))
}

func (p *Page) Scroll(ctx context.Context, dy int) error {
	var ignored interface{}
	return p.run(ctx, p.elementTimeout, chromedp.Evaluate(fmt.Sprintf(`window.scrollBy({top: %d, behavior: "smooth"})`, dy), &ignored))
}

func (p *Page) Frame(ctx context.Context, selector string, timeout time.Duration) (interfaces.Frame, error) {
	if timeout <= 0 {
		timeout = p.elementTimeout
	}
	var nodes []*cdp.Node
	if err := p.run(ctx, timeout,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("frame %s: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("frame %s not found", selector)
	}
	return &Frame{page: p, node: nodes[0]}, nil
}

// Close releases the tab, the browser and its allocator. Only the first
// call has an effect.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.browserCancel()
		p.allocatorCancel()
		p.logger.Debug().Msg("Browser closed")
	})
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
