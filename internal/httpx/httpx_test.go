package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/httpx"
)

func TestDo_DefaultHeaders(t *testing.T) {
	t.Parallel()

	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, httpx.DefaultUserAgent, r.Header.Get("User-Agent"))
		require.Equal(t, "kept", r.Header.Get("X-Trace"))
		require.Equal(t, "1", r.Header.Get("X-Extra"))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	c := httpx.New(time.Second, log)
	c.Headers = map[string]string{"X-Trace": "overwritten", "X-Extra": "1"}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/ping", nil)
	require.NoError(t, err)
	req.Header.Set("X-Trace", "kept")

	// Act
	resp, err := c.Do(req)

	// Assert
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, hook.AllEntries(), 1)
	require.Equal(t, http.StatusNoContent, hook.LastEntry().Data["status"])
	require.Equal(t, "/ping", hook.LastEntry().Data["path"])
}
