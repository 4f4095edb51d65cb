package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserAgentIsApplied(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := New(Options{UserAgent: "visionary-studio/test", Timeout: 5 * time.Second})
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "visionary-studio/test", got)
}

func TestDefaultTimeout(t *testing.T) {
	assert.Equal(t, 180*time.Second, New(Options{}).Timeout)
}
