package evasion

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/sessionbroker/internal/models"
)

//go:embed js/basic.js
var basicScript string

//go:embed js/advanced.js
var advancedScript string

// Script renders the patch script registered to run before any page
// script. The profile is serialized ahead of the patches as SESSION_PERSONA.
func Script(profile models.EvasionProfile) (string, error) {
	persona, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("failed to marshal persona: %w", err)
	}

	script := fmt.Sprintf("const SESSION_PERSONA = %s;\n%s", persona, basicScript)
	if profile.Advanced {
		script += "\n" + advancedScript
	}
	return script, nil
}
