package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileFlags_MergesDisabledFeaturesWithDefaults(t *testing.T) {
	flags := profileFlags([]string{
		"disable-blink-features=AutomationControlled",
		"disable-features=IsolateOrigins,site-per-process",
		"disable-infobars",
	})

	assert.Equal(t, []launchFlag{
		{name: "disable-blink-features", value: "AutomationControlled"},
		{name: "disable-features", value: "site-per-process,Translate,BlinkGenPropertyTrees,IsolateOrigins"},
		{name: "disable-infobars", value: true},
	}, flags)
}

func TestProfileFlags_RepeatedListSwitchAccumulates(t *testing.T) {
	flags := profileFlags([]string{
		"disable-features=IsolateOrigins",
		"no-first-run",
		"disable-features=AutofillServerCommunication,Translate",
	})

	assert.Equal(t, []launchFlag{
		{name: "disable-features", value: "site-per-process,Translate,BlinkGenPropertyTrees,IsolateOrigins,AutofillServerCommunication"},
		{name: "no-first-run", value: true},
	}, flags)
}

func TestProfileFlags_NoListSwitchLeavesDefaultsAlone(t *testing.T) {
	flags := profileFlags([]string{"lang=es-AR", "mute-audio"})

	assert.Equal(t, []launchFlag{
		{name: "lang", value: "es-AR"},
		{name: "mute-audio", value: true},
	}, flags)
}
