package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
	"github.com/ternarybob/sessionbroker/internal/testutil"
)

const appURL = "https://shop.mitiendanube.com/admin/v2/apps/envionube/ar/dashboard"

func newTestLocator(t *testing.T) (*Locator, common.SelectorsConfig) {
	t.Helper()
	target := common.NewDefaultConfig().Target
	l, err := NewLocator(target, time.Second, models.PacingPolicy{}, arbor.NewLogger())
	require.NoError(t, err)
	return l, target.Selectors
}

func appPage(sel common.SelectorsConfig, frame *testutil.FakeFrame) *testutil.FakePage {
	page := testutil.NewFakePage()
	page.SetURL(appURL)
	page.FrameFor = func(p *testutil.FakePage, selector string) (interfaces.Frame, error) {
		if selector != sel.AppFrame {
			return nil, testutil.ErrNotVisible
		}
		return frame, nil
	}
	frame.OnClickContaining = func(f *testutil.FakeFrame, selector, text string) error {
		page.SetURL(appURL + "#/shipping-details/sd-" + text + "?tab=summary")
		return nil
	}
	return page
}

func TestLocate_FollowsResultToReference(t *testing.T) {
	l, sel := newTestLocator(t)
	frame := testutil.NewFakeFrame(sel.Search)
	frame.SetContent(sel.ResultsContainer, "Orden #1234 Pendiente")
	page := appPage(sel, frame)

	ref, err := l.Locate(context.Background(), page, "1234")

	require.NoError(t, err)
	assert.Equal(t, models.ResourceReference{ResourceID: "1234", Reference: "sd-1234"}, ref)
	assert.Equal(t, "1234", frame.Typed(sel.Search))
	assert.Contains(t, frame.Calls(), "enter "+sel.Search)
	assert.Contains(t, frame.Calls(), "click-containing "+sel.ResultLink+" 1234")
}

func TestLocate_NotListed(t *testing.T) {
	l, sel := newTestLocator(t)
	frame := testutil.NewFakeFrame(sel.Search)
	frame.SetContent(sel.ResultsContainer, "No se encontraron resultados")
	page := appPage(sel, frame)

	_, err := l.Locate(context.Background(), page, "1234")

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrResourceNotFound))
	assert.NotContains(t, frame.Calls(), "click-containing "+sel.ResultLink+" 1234")
}

func TestLocate_MissingAppFrame(t *testing.T) {
	l, _ := newTestLocator(t)
	page := testutil.NewFakePage()

	_, err := l.Locate(context.Background(), page, "1234")

	assert.True(t, errors.Is(err, models.ErrResourceNotFound))
}

func TestLocate_DetailWithoutReference(t *testing.T) {
	l, sel := newTestLocator(t)
	frame := testutil.NewFakeFrame(sel.Search)
	frame.SetContent(sel.ResultsContainer, "1234")
	page := appPage(sel, frame)
	frame.OnClickContaining = func(f *testutil.FakeFrame, selector, text string) error {
		page.SetURL(appURL + "#/orders/1234")
		return nil
	}

	_, err := l.Locate(context.Background(), page, "1234")

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrReferenceExtractionFailed))
}

func TestExtract(t *testing.T) {
	l, _ := newTestLocator(t)

	tests := []struct {
		name string
		url  string
		want string
		ok   bool
	}{
		{"plain", appURL + "#/shipping-details/abc123", "abc123", true},
		{"query after id", appURL + "#/shipping-details/abc123?x=1", "abc123", true},
		{"nested path", appURL + "#/shipping-details/abc123/labels", "abc123", true},
		{"missing", appURL + "#/shipping-details/", "", false},
		{"other route", appURL + "#/orders/abc123", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Extract(tt.url)
			if !tt.ok {
				assert.True(t, errors.Is(err, models.ErrReferenceExtractionFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLocator_RejectsPatternWithoutGroup(t *testing.T) {
	target := common.NewDefaultConfig().Target
	target.ReferencePattern = `#/shipping-details/\w+`

	_, err := NewLocator(target, time.Second, models.PacingPolicy{}, arbor.NewLogger())

	assert.Error(t, err)
}
