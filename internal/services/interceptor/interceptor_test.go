package interceptor

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

var testFilter = Filter{
	Hosts: []string{"nuvem-envio-app-back.ms.tiendanube.com", "mitiendanube.com"},
	Paths: []string{"/stores/orders", "/api/", "/admin/"},
}

type fakeSource struct {
	mu       sync.Mutex
	handlers []func(interfaces.RequestEvent)
	detached int
}

func (s *fakeSource) OnRequest(fn func(interfaces.RequestEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
	return func() {
		s.mu.Lock()
		s.detached++
		s.mu.Unlock()
	}
}

func (s *fakeSource) emit(ev interfaces.RequestEvent) {
	s.mu.Lock()
	hs := append([]func(interfaces.RequestEvent){}, s.handlers...)
	s.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func TestObserve_FirstMatchWins(t *testing.T) {
	i := New(testFilter, arbor.NewLogger())

	cred, ok := i.Observe(interfaces.RequestEvent{
		URL:     "https://nuvem-envio-app-back.ms.tiendanube.com/stores/orders?page=1",
		Headers: map[string]string{"authorization": "Bearer first"},
	})
	require.True(t, ok)
	assert.Equal(t, "Bearer first", cred.Token)

	_, ok = i.Observe(interfaces.RequestEvent{
		URL:     "https://nuvem-envio-app-back.ms.tiendanube.com/stores/orders?page=2",
		Headers: map[string]string{"Authorization": "Bearer second"},
	})
	assert.False(t, ok)

	got, latched := i.Latch().Get()
	require.True(t, latched)
	assert.Equal(t, "Bearer first", got.Token)
}

func TestObserve_IgnoresNonQualifyingRequests(t *testing.T) {
	i := New(testFilter, arbor.NewLogger())

	tests := []struct {
		name string
		ev   interfaces.RequestEvent
	}{
		{"foreign host", interfaces.RequestEvent{URL: "https://analytics.example.com/api/collect", Headers: map[string]string{"Authorization": "x"}}},
		{"lookalike host", interfaces.RequestEvent{URL: "https://mitiendanube.com.evil.io/api/x", Headers: map[string]string{"Authorization": "x"}}},
		{"path outside filter", interfaces.RequestEvent{URL: "https://perlastore6.mitiendanube.com/static/app.js", Headers: map[string]string{"Authorization": "x"}}},
		{"no header", interfaces.RequestEvent{URL: "https://perlastore6.mitiendanube.com/admin/v2/apps", Headers: map[string]string{"Accept": "*/*"}}},
		{"blank header", interfaces.RequestEvent{URL: "https://perlastore6.mitiendanube.com/admin/v2/apps", Headers: map[string]string{"Authorization": "  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := i.Observe(tt.ev)
			assert.False(t, ok)
		})
	}
	assert.False(t, i.Latch().Latched())
}

func TestFilter_EmptyPathsAcceptsAnyPath(t *testing.T) {
	f := Filter{Hosts: []string{"api.example.com"}}
	assert.True(t, f.Matches("https://api.example.com/anything"))
	assert.False(t, f.Matches("https://www.example.com/anything"))
}

func TestAttach_CallbackRunsOnce(t *testing.T) {
	src := &fakeSource{}
	i := New(testFilter, arbor.NewLogger())

	var calls int32
	cancel := i.Attach(src, func(models.Credential) {
		atomic.AddInt32(&calls, 1)
	})

	ev := interfaces.RequestEvent{
		URL:     "https://perlastore6.mitiendanube.com/admin/v2/apps/envionube",
		Headers: map[string]string{"Authorization": "Bearer abc"},
	}

	var wg sync.WaitGroup
	for n := 0; n < 50; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src.emit(ev)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	cancel()
	assert.Equal(t, 1, src.detached)
}

func TestLatch_ConcurrentOffers(t *testing.T) {
	var l Latch
	var wins int32
	var wg sync.WaitGroup
	for n := 0; n < 100; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if l.Offer(models.Credential{Token: "t"}) {
				atomic.AddInt32(&wins, 1)
			}
		}(n)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
