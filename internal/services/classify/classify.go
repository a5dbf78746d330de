// Package classify decides what kind of page the browser is looking at.
// All marker and pattern matching for page state lives here.
package classify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

// Rules are the deployment-tuned markers the classifier matches against
type Rules struct {
	LoginURLPatterns  []string // substrings of a sign-in URL
	AuthMarkers       []string // text seen only when signed in
	LoginPromptMarker string   // text seen only when signed out
	ChallengeSelector []string // elements of a bot challenge widget
}

// RulesFromConfig builds classifier rules from the target configuration
func RulesFromConfig(target common.TargetConfig) Rules {
	return Rules{
		LoginURLPatterns:  target.LoginURLPatterns,
		AuthMarkers:       target.AuthMarkers,
		LoginPromptMarker: target.LoginPromptMarker,
		ChallengeSelector: target.Selectors.Challenge,
	}
}

// Observation is a snapshot of the page plus the interceptor's state
type Observation struct {
	URL     string
	HTML    string
	Latched bool
}

// Classify applies the ordered checks:
//  1. a latched credential means authenticated
//  2. a sign-in URL means login required
//  3. a visible challenge widget means bot challenge
//  4. auth markers, or the absence of the login prompt, mean authenticated
//
// A page with no rendered text yet is Unknown.
func Classify(obs Observation, rules Rules) models.PageState {
	if obs.Latched {
		return models.PageAuthenticated
	}

	if IsLoginURL(obs.URL, rules.LoginURLPatterns) {
		return models.PageLoginRequired
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(obs.HTML))
	if err != nil {
		return models.PageUnknown
	}

	if challengePresent(doc, rules.ChallengeSelector) {
		return models.PageBotChallenge
	}

	text := renderedText(doc)
	if text == "" {
		return models.PageUnknown
	}
	if common.ContainsAny(text, rules.AuthMarkers) {
		return models.PageAuthenticated
	}
	if rules.LoginPromptMarker != "" && strings.Contains(text, rules.LoginPromptMarker) {
		return models.PageLoginRequired
	}
	return models.PageAuthenticated
}

// IsLoginURL reports whether rawURL looks like a sign-in surface
func IsLoginURL(rawURL string, patterns []string) bool {
	return common.ContainsAny(strings.ToLower(rawURL), lower(patterns))
}

// ChallengePresent reports whether html contains any challenge widget
func ChallengePresent(html string, selectors []string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return challengePresent(doc, selectors)
}

func challengePresent(doc *goquery.Document, selectors []string) bool {
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func renderedText(doc *goquery.Document) string {
	body := doc.Find("body")
	body.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
