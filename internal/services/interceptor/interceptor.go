// Package interceptor watches a page's outbound requests and latches the
// first Authorization header sent to an allowlisted host.
package interceptor

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// Latch holds at most one credential. The first Offer wins.
type Latch struct {
	value atomic.Pointer[models.Credential]
}

// Offer stores cred if the latch is empty and reports whether it did
func (l *Latch) Offer(cred models.Credential) bool {
	return l.value.CompareAndSwap(nil, &cred)
}

// Get returns the latched credential, if any
func (l *Latch) Get() (models.Credential, bool) {
	c := l.value.Load()
	if c == nil {
		return models.Credential{}, false
	}
	return *c, true
}

// Latched reports whether a credential has been captured
func (l *Latch) Latched() bool {
	return l.value.Load() != nil
}

// Filter decides which requests may carry the credential
type Filter struct {
	Hosts []string // exact host or parent domain
	Paths []string // optional URL substrings; empty accepts any path
}

// Matches reports whether rawURL is a qualifying destination
func (f Filter) Matches(rawURL string) bool {
	if !common.HostAllowed(common.HostOf(rawURL), f.Hosts) {
		return false
	}
	if len(f.Paths) == 0 {
		return true
	}
	return common.ContainsAny(rawURL, f.Paths)
}

// Interceptor feeds qualifying request headers into a latch
type Interceptor struct {
	filter Filter
	latch  *Latch
	logger arbor.ILogger
	now    func() time.Time
}

// New creates an interceptor with a fresh latch
func New(filter Filter, logger arbor.ILogger) *Interceptor {
	return &Interceptor{
		filter: filter,
		latch:  &Latch{},
		logger: logger,
		now:    time.Now,
	}
}

// Latch exposes the interceptor's latch for polling
func (i *Interceptor) Latch() *Latch {
	return i.latch
}

// Attach subscribes to source. onCapture runs once, on the event goroutine,
// when the first credential is latched; it must not block.
func (i *Interceptor) Attach(source interfaces.RequestSource, onCapture func(models.Credential)) func() {
	return source.OnRequest(func(ev interfaces.RequestEvent) {
		if cred, ok := i.Observe(ev); ok && onCapture != nil {
			onCapture(cred)
		}
	})
}

// Observe inspects one request and reports whether it produced the
// attempt's credential. Later matches return false.
func (i *Interceptor) Observe(ev interfaces.RequestEvent) (models.Credential, bool) {
	if i.latch.Latched() {
		return models.Credential{}, false
	}
	if !i.filter.Matches(ev.URL) {
		return models.Credential{}, false
	}

	token := headerValue(ev.Headers, "Authorization")
	if token == "" {
		return models.Credential{}, false
	}

	cred := models.Credential{
		Token:      token,
		CapturedAt: i.now(),
		SourceURL:  ev.URL,
	}
	if !i.latch.Offer(cred) {
		return models.Credential{}, false
	}

	i.logger.Info().
		Str("source_url", ev.URL).
		Str("credential", common.Preview(token, 16)).
		Msg("Credential captured")
	return cred, true
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
