package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sessionbroker/internal/common"
	"github.com/ternarybob/sessionbroker/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target := common.NewDefaultConfig().Target
	target.DispatchURL = srv.URL + "/stores/dispatches"
	return NewClient(target, "test-agent", 5*time.Second, arbor.NewLogger())
}

func TestDispatch_SendsPayloadWithCredential(t *testing.T) {
	var (
		gotAuth   string
		gotMethod string
		gotPath   string
		gotBody   map[string]any
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := client.Dispatch(context.Background(),
		models.Credential{Token: "Bearer abc"},
		models.ResourceReference{ResourceID: "1234", Reference: "sd-987"})

	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/stores/dispatches", gotPath)
	assert.Equal(t, map[string]any{
		"createFile":         map[string]any{},
		"contentDeclaration": false,
		"label":              true,
		"ordersIds":          []any{"sd-987"},
	}, gotBody)
}

func TestDispatch_RejectedCarriesStatusAndBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"order already dispatched"}`))
	})

	err := client.Dispatch(context.Background(),
		models.Credential{Token: "Bearer abc"},
		models.ResourceReference{ResourceID: "1234", Reference: "sd-987"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDispatchRejected))
	assert.False(t, models.IsRetryable(err))

	var acqErr *models.AcquisitionError
	require.True(t, errors.As(err, &acqErr))
	assert.Equal(t, http.StatusUnprocessableEntity, acqErr.Status)
	assert.Contains(t, acqErr.Body, "already dispatched")
}

func TestDispatch_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Dispatch(ctx, models.Credential{Token: "Bearer abc"}, models.ResourceReference{Reference: "x"})

	require.ErrorIs(t, err, context.Canceled)
}

func TestDispatch_UsesCredentialUserAgent(t *testing.T) {
	var agents []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	})
	ref := models.ResourceReference{ResourceID: "1234", Reference: "sd-987"}

	chrome := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	require.NoError(t, client.Dispatch(context.Background(), models.Credential{Token: "Bearer abc", UserAgent: chrome}, ref))
	require.NoError(t, client.Dispatch(context.Background(), models.Credential{Token: "Bearer abc"}, ref))

	assert.Equal(t, []string{chrome, "test-agent"}, agents)
}
