package classify

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

var rules = RulesFromConfig(common.NewDefaultConfig().Target)

const dashboardURL = "https://perlastore6.mitiendanube.com/admin/v2/apps/envionube/ar/dashboard"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		obs  Observation
		want models.PageState
	}{
		{
			name: "latched credential wins over everything",
			obs:  Observation{URL: "https://www.tiendanube.com/login", HTML: "<body>Iniciar sesión</body>", Latched: true},
			want: models.PageAuthenticated,
		},
		{
			name: "login url",
			obs:  Observation{URL: "https://www.tiendanube.com/login?redirect=admin", HTML: "<body>Dashboard</body>"},
			want: models.PageLoginRequired,
		},
		{
			name: "signin url is case insensitive",
			obs:  Observation{URL: "https://accounts.example.com/SignIn", HTML: "<body>x</body>"},
			want: models.PageLoginRequired,
		},
		{
			name: "challenge widget",
			obs:  Observation{URL: dashboardURL, HTML: `<body><div class="g-recaptcha" data-sitekey="k"></div>Dashboard</body>`},
			want: models.PageBotChallenge,
		},
		{
			name: "auth marker",
			obs:  Observation{URL: dashboardURL, HTML: "<body><h1>Dashboard</h1></body>"},
			want: models.PageAuthenticated,
		},
		{
			name: "loading marker",
			obs:  Observation{URL: dashboardURL, HTML: "<body><p>Cargando...</p></body>"},
			want: models.PageAuthenticated,
		},
		{
			name: "login prompt on a non-login url",
			obs:  Observation{URL: dashboardURL, HTML: "<body><button>Iniciar sesión</button></body>"},
			want: models.PageLoginRequired,
		},
		{
			name: "no prompt means signed in",
			obs:  Observation{URL: dashboardURL, HTML: "<body><nav>Pedidos Productos</nav></body>"},
			want: models.PageAuthenticated,
		},
		{
			name: "marker inside script is ignored",
			obs:  Observation{URL: dashboardURL, HTML: `<body><script>var t = "Dashboard";</script>Iniciar sesión</body>`},
			want: models.PageLoginRequired,
		},
		{
			name: "blank page",
			obs:  Observation{URL: dashboardURL, HTML: "<html><body>   </body></html>"},
			want: models.PageUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.obs, rules))
		})
	}
}

func TestRenderedText_CollapsesWhitespace(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>\n  <p>Hola</p>\n\t<p>mundo</p><style>p{}</style></body>"))
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo", renderedText(doc))
}

func TestChallengePresent(t *testing.T) {
	assert.True(t, ChallengePresent(`<iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe>`, rules.ChallengeSelector))
	assert.False(t, ChallengePresent(`<form><input id="user-mail"></form>`, rules.ChallengeSelector))
}
