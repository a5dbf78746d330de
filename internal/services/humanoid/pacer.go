// Package humanoid paces browser input like a person would: jittered
// keystrokes with the occasional corrected typo, drifting pointer paths
// and reading pauses.
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"github.com/chromedp/chromedp/kb"

	"github.com/ternarybob/sessionbroker/internal/interfaces"
	"github.com/ternarybob/sessionbroker/internal/models"
)

const (
	perlinAlpha = 2.0
	perlinBeta  = 2.0
	perlinN     = 3

	minTypoLength = 6
)

// Pacer drives input through a page according to a pacing policy.
// One pacer serves one attempt.
type Pacer struct {
	policy models.PacingPolicy
	mu     sync.Mutex
	rnd    *rand.Rand
	noise  *perlin.Perlin
	tick   float64

	lastX, lastY float64
}

// New creates a pacer. A zero seed draws one from the clock.
func New(policy models.PacingPolicy, seed int64) *Pacer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pacer{
		policy: policy,
		rnd:    rand.New(rand.NewSource(seed)),
		noise:  perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed),
	}
}

// Policy returns the pacing policy in use
func (p *Pacer) Policy() models.PacingPolicy {
	return p.policy
}

func (p *Pacer) draw(r models.DelayRange) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Pick(p.rnd)
}

func (p *Pacer) chance(prob float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64() < prob
}

func (p *Pacer) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Intn(n)
}

// Pause waits for a duration drawn from r, returning early with the
// context's error on cancellation.
func (p *Pacer) Pause(ctx context.Context, r models.DelayRange) error {
	return Sleep(ctx, p.draw(r))
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Type enters text into selector one key at a time. Inputs long enough
// may get a single wrong key that is immediately erased.
func (p *Pacer) Type(ctx context.Context, target interfaces.Keyboard, selector, text string) error {
	runes := []rune(text)

	typoAt := -1
	if len(runes) >= minTypoLength && p.chance(p.policy.TypoChance) {
		typoAt = 1 + p.intn(len(runes)-1)
	}

	for i, r := range runes {
		if i == typoAt {
			if err := target.SendKeys(ctx, selector, string(neighbour(r))); err != nil {
				return err
			}
			if err := p.Pause(ctx, p.policy.Keystroke); err != nil {
				return err
			}
			if err := target.SendKeys(ctx, selector, kb.Backspace); err != nil {
				return err
			}
			if err := p.Pause(ctx, p.policy.Keystroke); err != nil {
				return err
			}
		}
		if err := target.SendKeys(ctx, selector, string(r)); err != nil {
			return err
		}
		if err := p.Pause(ctx, p.policy.Keystroke); err != nil {
			return err
		}
	}
	return nil
}

var keyboardRows = []string{"qwertyuiop", "asdfghjkl", "zxcvbnm", "1234567890"}

// neighbour returns a key adjacent to r on a QWERTY layout, or r's
// successor when r is not a letter or digit.
func neighbour(r rune) rune {
	for _, row := range keyboardRows {
		for i, k := range row {
			if k != r {
				continue
			}
			if i+1 < len(row) {
				return rune(row[i+1])
			}
			return rune(row[i-1])
		}
	}
	return 'x'
}

// MoveTo glides the pointer from its last position to the centre of
// selector along a path bent by Perlin noise.
func (p *Pacer) MoveTo(ctx context.Context, page interfaces.Page, selector string) error {
	x, y, err := page.ElementCenter(ctx, selector)
	if err != nil {
		return err
	}
	for _, pt := range p.path(x, y) {
		if err := page.MoveMouse(ctx, pt[0], pt[1]); err != nil {
			return err
		}
		if err := p.Pause(ctx, p.policy.PointerStep); err != nil {
			return err
		}
	}
	return nil
}

// path returns intermediate points ending exactly at (x, y)
func (p *Pacer) path(x, y float64) [][2]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	fromX, fromY := p.lastX, p.lastY
	dx, dy := x-fromX, y-fromY
	dist := math.Hypot(dx, dy)

	steps := 8 + int(dist/40)
	if steps > 40 {
		steps = 40
	}

	// Unit normal to the straight line, for lateral drift
	nx, ny := 0.0, 0.0
	if dist > 0 {
		nx, ny = -dy/dist, dx/dist
	}
	amplitude := math.Min(dist*0.1, 30)

	points := make([][2]float64, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		// ease in-out
		e := t * t * (3 - 2*t)
		p.tick += 0.15
		drift := p.noise.Noise1D(p.tick) * amplitude * math.Sin(math.Pi*t)
		points = append(points, [2]float64{
			fromX + dx*e + nx*drift,
			fromY + dy*e + ny*drift,
		})
	}
	points[len(points)-1] = [2]float64{x, y}

	p.lastX, p.lastY = x, y
	return points
}

// Browse imitates a visitor skimming a page: a couple of scrolls, a
// reading pause, and a scroll back to the top.
func (p *Pacer) Browse(ctx context.Context, page interfaces.Page) error {
	scrolls := 1 + p.intn(3)
	total := 0
	for i := 0; i < scrolls; i++ {
		dy := 150 + p.intn(350)
		total += dy
		if err := page.Scroll(ctx, dy); err != nil {
			return err
		}
		if err := p.Pause(ctx, p.policy.Reading); err != nil {
			return err
		}
	}
	return page.Scroll(ctx, -total)
}
