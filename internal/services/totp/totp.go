package totp

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/ternarybob/sessionbroker/internal/models"
)

// Generator computes RFC 6238 codes: 6 digits, 30 second period, SHA1
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator using the wall clock
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate returns the current code for secret. Spaces, dashes and case
// in the secret are ignored.
func (g *Generator) Generate(secret string) (string, error) {
	normalized := Normalize(secret)
	if normalized == "" {
		return "", models.NewError(models.KindTotpGeneration, "shared secret is empty", nil)
	}

	code, err := totp.GenerateCodeCustom(normalized, g.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", models.NewError(models.KindTotpGeneration, "malformed shared secret", err)
	}
	return code, nil
}

// Normalize strips separators and upper-cases a base32 secret
func Normalize(secret string) string {
	r := strings.NewReplacer(" ", "", "-", "", "\t", "", "\n", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(secret)))
}
