package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Frame scopes queries to the document of an iframe node
type Frame struct {
	page *Page
	node *cdp.Node
}

func (f *Frame) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = f.page.elementTimeout
	}
	return f.page.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery, chromedp.FromNode(f.node)))
}

func (f *Frame) Click(ctx context.Context, selector string) error {
	return f.page.run(ctx, f.page.elementTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.FromNode(f.node)))
}

func (f *Frame) SendKeys(ctx context.Context, selector, text string) error {
	return f.page.run(ctx, f.page.elementTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery, chromedp.FromNode(f.node)))
}

func (f *Frame) Clear(ctx context.Context, selector string) error {
	return f.page.run(ctx, f.page.elementTimeout, chromedp.SetValue(selector, "", chromedp.ByQuery, chromedp.FromNode(f.node)))
}

func (f *Frame) WaitContains(ctx context.Context, selector, text string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = f.page.elementTimeout
	}
	var found bool
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).some((el) => (el.textContent || "").includes(%s))`,
		jsString(selector), jsString(text))
	return f.page.run(ctx, timeout, chromedp.Poll(expr, &found,
		chromedp.WithPollingInFrame(f.node),
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(250*time.Millisecond),
	))
}

// ClickContaining clicks inside the frame's document. The expression
// returns true only once it has clicked, so the poll ends on the first hit.
func (f *Frame) ClickContaining(ctx context.Context, selector, text string) error {
	var clicked bool
	expr := fmt.Sprintf(`(() => {
		const el = Array.from(document.querySelectorAll(%s)).find((e) => (e.textContent || "").includes(%s));
		if (!el) return false;
		el.click();
		return true;
	})()`, jsString(selector), jsString(text))
	return f.page.run(ctx, f.page.elementTimeout, chromedp.Poll(expr, &clicked,
		chromedp.WithPollingInFrame(f.node),
		chromedp.WithPollingTimeout(f.page.elementTimeout),
		chromedp.WithPollingInterval(250*time.Millisecond),
	))
}
