package humanoid

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/sessionbroker/internal/models"
	"github.com/ternarybob/sessionbroker/internal/testutil"
)

func TestType_WithoutTypos(t *testing.T) {
	page := testutil.NewFakePage()
	p := New(models.PacingPolicy{}, 1)

	require.NoError(t, p.Type(context.Background(), page, "#user-mail", "ops@example.com"))
	assert.Equal(t, "ops@example.com", page.Typed("#user-mail"))
}

func TestType_TypoIsCorrected(t *testing.T) {
	page := testutil.NewFakePage()
	p := New(models.PacingPolicy{TypoChance: 1}, 99)

	require.NoError(t, p.Type(context.Background(), page, "#pass", "s3cret-password"))
	assert.Equal(t, "s3cret-password", page.Typed("#pass"))
}

func TestType_ShortInputNeverTypos(t *testing.T) {
	rec := &keyRecorder{}
	p := New(models.PacingPolicy{TypoChance: 1}, 5)

	require.NoError(t, p.Type(context.Background(), rec, "#code", "12345"))
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, rec.keys)
}

func TestType_HonoursCancellation(t *testing.T) {
	page := testutil.NewFakePage()
	p := New(models.PacingPolicy{Keystroke: models.DelayRange{Min: time.Hour, Max: time.Hour}}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Type(ctx, page, "#user-mail", "abc")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMoveTo_EndsOnTarget(t *testing.T) {
	page := testutil.NewFakePage()
	page.Show(true, ".js-tkit-loading-button")
	p := New(models.PacingPolicy{}, 3)

	require.NoError(t, p.MoveTo(context.Background(), page, ".js-tkit-loading-button"))

	moves := 0
	var last string
	for _, c := range page.Calls() {
		if strings.HasPrefix(c, "mouse ") {
			moves++
			last = c
		}
	}
	assert.GreaterOrEqual(t, moves, 8)
	assert.Equal(t, "mouse 400,300", last)
}

func TestMoveTo_MissingElement(t *testing.T) {
	page := testutil.NewFakePage()
	p := New(models.PacingPolicy{}, 3)
	assert.ErrorIs(t, p.MoveTo(context.Background(), page, "#nope"), testutil.ErrNotVisible)
}

func TestBrowse_ReturnsToTop(t *testing.T) {
	page := testutil.NewFakePage()
	p := New(models.PacingPolicy{}, 11)

	require.NoError(t, p.Browse(context.Background(), page))
	assert.GreaterOrEqual(t, page.Count("scroll "), 2)
}

func TestNeighbour(t *testing.T) {
	assert.Equal(t, 'w', neighbour('q'))
	assert.Equal(t, 'o', neighbour('p'))
	assert.Equal(t, 'x', neighbour('@'))
}

func TestSleep_ZeroReturnsImmediately(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
}

type keyRecorder struct {
	keys []string
}

func (k *keyRecorder) SendKeys(ctx context.Context, selector, text string) error {
	k.keys = append(k.keys, text)
	return nil
}
