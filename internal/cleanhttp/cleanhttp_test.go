package cleanhttp

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowBody answers immediately and then streams chunks with a pause
// between each, taking longer overall than the timeouts under test.
func slowBody(chunks int, pause time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < chunks; i++ {
			io.WriteString(w, "chunk\n")
			w.(http.Flusher).Flush()
			time.Sleep(pause)
		}
	}
}

func TestStreamingClientOutlivesHeaderTimeout(t *testing.T) {
	srv := httptest.NewServer(slowBody(8, 50*time.Millisecond))
	defer srv.Close()

	resp, err := NewStreamingClient(150 * time.Millisecond).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(string(data), "chunk"))
}

func TestStreamingClientBoundsHeaderWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewStreamingClient(100 * time.Millisecond).Get(srv.URL)
	require.Error(t, err)
}

func TestClientBoundsWholeRequest(t *testing.T) {
	srv := httptest.NewServer(slowBody(8, 50*time.Millisecond))
	defer srv.Close()

	resp, err := NewClient(150 * time.Millisecond).Get(srv.URL)
	if err == nil {
		defer resp.Body.Close()
		_, err = io.ReadAll(resp.Body)
	}
	require.Error(t, err)
}
