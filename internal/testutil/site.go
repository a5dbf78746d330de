package testutil

import (
	"strings"
	"sync"

	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// Addresses served by FakeSite
const (
	LoginURL     = "https://www.tiendanube.com/login"
	DashboardURL = "https://shop.mitiendanube.com/admin/v2/apps/envionube/ar/dashboard"
	APIURL       = "https://nuvem-envio-app-back.ms.tiendanube.com/stores/orders?page=1"
	Token        = "Bearer eyJhbGciOiJIUzI1NiJ9.test"
)

// Selectors used by FakeSite, matching the default target configuration
const (
	emailSel     = "#user-mail"
	passwordSel  = "#pass"
	submitSel    = ".js-tkit-loading-button"
	codeSel      = "#code"
	appFrameSel  = `iframe[data-testid="iframe-app"]`
	searchSel    = ".nimbus-input_input__rlcyv70"
	resultsSel   = "table"
	loginPage    = "<html><body><h1>Iniciar sesión</h1></body></html>"
	dashboardDoc = "<html><body><div>Dashboard</div></body></html>"
)

// FakeSite scripts a FakePage to behave like the remote application:
// a login form, an optional code prompt, a dashboard that calls the API
// with a bearer credential, and an embedded app listing orders.
type FakeSite struct {
	ValidCookies bool              // a restored jar is accepted
	RejectLogins int               // submits bounced back to the form
	TwoFactor    bool              // a code prompt follows the password
	EmitsToken   bool              // the dashboard calls the API
	Orders       map[string]string // order id -> shipping reference

	mu       sync.Mutex
	loggedIn bool
	pages    []*FakePage
}

// NewFakeSite creates a site whose dashboard emits a credential
func NewFakeSite() *FakeSite {
	return &FakeSite{EmitsToken: true, Orders: map[string]string{}}
}

// Launcher returns a launcher that opens a fresh page on the site per launch
func (s *FakeSite) Launcher() *FakeLauncher {
	return &FakeLauncher{NewPage: func(int) (*FakePage, error) { return s.NewPage(), nil }}
}

// Pages returns every page opened on the site
func (s *FakeSite) Pages() []*FakePage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakePage{}, s.pages...)
}

// LastPage returns the most recently opened page
func (s *FakeSite) LastPage() *FakePage {
	pages := s.Pages()
	if len(pages) == 0 {
		return nil
	}
	return pages[len(pages)-1]
}

// NewPage opens a page wired to the site
func (s *FakeSite) NewPage() *FakePage {
	page := NewFakePage()
	page.OnNavigate = s.navigate
	page.OnSubmit = s.submit
	page.FrameFor = s.frame

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()
	return page
}

func (s *FakeSite) navigate(p *FakePage, url string) {
	switch url {
	case LoginURL:
		p.SetHTML(loginPage)
		p.Show(true, emailSel, passwordSel, submitSel)
	case DashboardURL:
		if !s.signedIn(p) {
			p.SetURL(LoginURL + "?redirect=dashboard")
			p.SetHTML(loginPage)
			return
		}
		p.SetHTML(dashboardDoc)
		if s.emitsToken() {
			p.EmitAuth(APIURL, Token)
		}
	}
}

func (s *FakeSite) submit(p *FakePage, selector string) error {
	if selector != submitSel {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RejectLogins > 0 {
		s.RejectLogins--
		return nil
	}
	s.loggedIn = true
	p.SetJarCookies([]models.Cookie{{Name: "sid", Value: "fresh", Domain: ".mitiendanube.com", Path: "/"}})
	p.Show(false, emailSel, passwordSel, submitSel)
	if s.TwoFactor {
		p.SetURL("https://www.tiendanube.com/authentication-factor-verify")
		p.Show(true, codeSel)
		return nil
	}
	p.SetURL(DashboardURL)
	return nil
}

func (s *FakeSite) frame(p *FakePage, selector string) (interfaces.Frame, error) {
	if selector != appFrameSel {
		return nil, ErrNotVisible
	}
	f := NewFakeFrame(searchSel)
	f.OnClickContaining = func(f *FakeFrame, selector, text string) error {
		s.mu.Lock()
		ref, ok := s.Orders[text]
		s.mu.Unlock()
		if !ok {
			return ErrNotVisible
		}
		p.SetURL(DashboardURL + "#/shipping-details/" + ref)
		return nil
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.Orders))
	for id := range s.Orders {
		ids = append(ids, "Orden #"+id)
	}
	s.mu.Unlock()
	f.SetContent(resultsSel, strings.Join(ids, "\n"))
	return f, nil
}

// LoggedIn reports whether an interactive login succeeded
func (s *FakeSite) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *FakeSite) signedIn(p *FakePage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loggedIn {
		return true
	}
	return s.ValidCookies && len(p.JarCookies()) > 0
}

func (s *FakeSite) emitsToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EmitsToken
}

// SetEmitsToken switches whether later dashboard visits call the API
func (s *FakeSite) SetEmitsToken(emits bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EmitsToken = emits
}
