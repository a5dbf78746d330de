// Package testutil provides scriptable stand-ins for the browser used by
// package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// ErrNotVisible is returned by waits on selectors the fake does not show
var ErrNotVisible = errors.New("selector not visible")

// FakePage is an in-memory interfaces.Page. Hooks run with the page
// unlocked so they may call back into it.
type FakePage struct {
	mu sync.Mutex

	url     string
	html    string
	visible map[string]bool
	cookies []models.Cookie

	handlers map[int]func(interfaces.RequestEvent)
	nextID   int

	calls  []string
	keys   map[string]string
	closed int

	OnNavigate func(p *FakePage, url string)
	OnReload   func(p *FakePage)
	OnSubmit   func(p *FakePage, selector string) error
	OnClick    func(p *FakePage, selector string)
	FrameFor   func(p *FakePage, selector string) (interfaces.Frame, error)
}

// NewFakePage creates a blank page
func NewFakePage() *FakePage {
	return &FakePage{
		url:      "about:blank",
		visible:  map[string]bool{},
		handlers: map[int]func(interfaces.RequestEvent){},
		keys:     map[string]string{},
	}
}

func (p *FakePage) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

// SetURL changes the current location without recording a navigation
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// SetHTML replaces the document
func (p *FakePage) SetHTML(html string) {
	p.mu.Lock()
	p.html = html
	p.mu.Unlock()
}

// Show toggles visibility of selectors
func (p *FakePage) Show(visible bool, selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.visible[s] = visible
	}
}

// Emit delivers a request event to every attached handler
func (p *FakePage) Emit(ev interfaces.RequestEvent) {
	p.mu.Lock()
	hs := make([]func(interfaces.RequestEvent), 0, len(p.handlers))
	for _, h := range p.handlers {
		hs = append(hs, h)
	}
	p.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// EmitAuth emits a request carrying an Authorization header
func (p *FakePage) EmitAuth(url, token string) {
	p.Emit(interfaces.RequestEvent{URL: url, Method: "GET", Headers: map[string]string{"Authorization": token}})
}

// Calls returns the recorded call log
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

// Count returns how many recorded calls start with prefix
func (p *FakePage) Count(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Typed returns the text typed into selector, with backspaces applied
func (p *FakePage) Typed(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[selector]
}

// Closed returns how many times Close was called
func (p *FakePage) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Listeners returns the number of attached request handlers
func (p *FakePage) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

// JarCookies returns the cookies currently set on the page
func (p *FakePage) JarCookies() []models.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Cookie{}, p.cookies...)
}

// SetJarCookies replaces the page's cookies
func (p *FakePage) SetJarCookies(cookies []models.Cookie) {
	p.mu.Lock()
	p.cookies = append([]models.Cookie{}, cookies...)
	p.mu.Unlock()
}

func (p *FakePage) OnRequest(fn func(interfaces.RequestEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate " + url)
	p.SetURL(url)
	if p.OnNavigate != nil {
		p.OnNavigate(p, url)
	}
	return ctx.Err()
}

func (p *FakePage) Reload(ctx context.Context) error {
	p.record("reload")
	if p.OnReload != nil {
		p.OnReload(p)
	}
	return ctx.Err()
}

func (p *FakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *FakePage) Cookies(ctx context.Context) ([]models.Cookie, error) {
	return p.JarCookies(), nil
}

func (p *FakePage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	p.record("set-cookies")
	p.SetJarCookies(cookies)
	return nil
}

func (p *FakePage) Exists(ctx context.Context, selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector]
}

func (p *FakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	p.record("wait " + selector)
	if p.Exists(ctx, selector) {
		return nil
	}
	return fmt.Errorf("%s: %w", selector, ErrNotVisible)
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	p.record("click " + selector)
	if !p.Exists(ctx, selector) {
		return fmt.Errorf("%s: %w", selector, ErrNotVisible)
	}
	if p.OnClick != nil {
		p.OnClick(p, selector)
	}
	return nil
}

func (p *FakePage) SubmitAndWait(ctx context.Context, selector string, timeout time.Duration) error {
	p.record("submit " + selector)
	if p.OnSubmit != nil {
		return p.OnSubmit(p, selector)
	}
	return nil
}

func (p *FakePage) SendKeys(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := []rune(p.keys[selector])
	for _, r := range text {
		switch r {
		case '\b':
			if len(current) > 0 {
				current = current[:len(current)-1]
			}
		case '\r', '\n':
			p.calls = append(p.calls, "enter "+selector)
		default:
			current = append(current, r)
		}
	}
	p.keys[selector] = string(current)
	return nil
}

func (p *FakePage) Clear(ctx context.Context, selector string) error {
	p.record("clear " + selector)
	p.mu.Lock()
	delete(p.keys, selector)
	p.mu.Unlock()
	return nil
}

func (p *FakePage) WaitURLChange(ctx context.Context, from string, timeout time.Duration) (string, error) {
	url, _ := p.CurrentURL(ctx)
	if url == from {
		return "", fmt.Errorf("url did not change from %s", from)
	}
	return url, nil
}

func (p *FakePage) ElementCenter(ctx context.Context, selector string) (float64, float64, error) {
	if !p.Exists(ctx, selector) {
		return 0, 0, fmt.Errorf("%s: %w", selector, ErrNotVisible)
	}
	return 400, 300, nil
}

func (p *FakePage) MoveMouse(ctx context.Context, x, y float64) error {
	p.record(fmt.Sprintf("mouse %.0f,%.0f", x, y))
	return nil
}

func (p *FakePage) Scroll(ctx context.Context, dy int) error {
	p.record(fmt.Sprintf("scroll %d", dy))
	return nil
}

func (p *FakePage) Frame(ctx context.Context, selector string, timeout time.Duration) (interfaces.Frame, error) {
	p.record("frame " + selector)
	if p.FrameFor != nil {
		return p.FrameFor(p, selector)
	}
	return nil, fmt.Errorf("frame %s: %w", selector, ErrNotVisible)
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

// FakeFrame is an in-memory interfaces.Frame
type FakeFrame struct {
	mu       sync.Mutex
	visible  map[string]bool
	contains map[string]string
	keys     map[string]string
	calls    []string

	OnClickContaining func(f *FakeFrame, selector, text string) error
}

// NewFakeFrame creates a frame showing the given selectors
func NewFakeFrame(visible ...string) *FakeFrame {
	f := &FakeFrame{
		visible:  map[string]bool{},
		contains: map[string]string{},
		keys:     map[string]string{},
	}
	for _, s := range visible {
		f.visible[s] = true
	}
	return f
}

// SetContent sets the text found under selector
func (f *FakeFrame) SetContent(selector, text string) {
	f.mu.Lock()
	f.contains[selector] = text
	f.mu.Unlock()
}

// Typed returns the text typed into selector
func (f *FakeFrame) Typed(selector string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[selector]
}

// Calls returns the recorded call log
func (f *FakeFrame) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *FakeFrame) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeFrame) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	f.record("wait " + selector)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visible[selector] {
		return nil
	}
	return fmt.Errorf("%s: %w", selector, ErrNotVisible)
}

func (f *FakeFrame) Click(ctx context.Context, selector string) error {
	f.record("click " + selector)
	return nil
}

func (f *FakeFrame) Clear(ctx context.Context, selector string) error {
	f.record("clear " + selector)
	f.mu.Lock()
	delete(f.keys, selector)
	f.mu.Unlock()
	return nil
}

func (f *FakeFrame) SendKeys(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := []rune(f.keys[selector])
	for _, r := range text {
		switch r {
		case '\b':
			if len(current) > 0 {
				current = current[:len(current)-1]
			}
		case '\r', '\n':
			f.calls = append(f.calls, "enter "+selector)
		default:
			current = append(current, r)
		}
	}
	f.keys[selector] = string(current)
	return nil
}

func (f *FakeFrame) WaitContains(ctx context.Context, selector, text string, timeout time.Duration) error {
	f.record("wait-contains " + selector + " " + text)
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(f.contains[selector], text) {
		return nil
	}
	return fmt.Errorf("%s does not contain %q: %w", selector, text, ErrNotVisible)
}

func (f *FakeFrame) ClickContaining(ctx context.Context, selector, text string) error {
	f.record("click-containing " + selector + " " + text)
	if f.OnClickContaining != nil {
		return f.OnClickContaining(f, selector, text)
	}
	return nil
}

// FakeLauncher hands out pages from a factory and counts launches
type FakeLauncher struct {
	mu       sync.Mutex
	NewPage  func(n int) (*FakePage, error)
	Pages    []*FakePage
	Profiles []models.EvasionProfile
}

func (l *FakeLauncher) Launch(ctx context.Context, profile models.EvasionProfile) (interfaces.Page, error) {
	l.mu.Lock()
	n := len(l.Profiles)
	l.Profiles = append(l.Profiles, profile)
	l.mu.Unlock()

	page, err := l.NewPage(n)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.Pages = append(l.Pages, page)
	l.mu.Unlock()
	return page, nil
}

// Launches returns how many launches were attempted
func (l *FakeLauncher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Profiles)
}
