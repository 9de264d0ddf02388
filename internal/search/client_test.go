package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuescout/internal/quota"
)

var testCred = quota.Credential{ID: "c1", APIKey: "key-123", EngineID: "engine-456", DailyLimit: 100}

func TestExecute_Success(t *testing.T) {
	var gotKey, gotCx, gotQ string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotCx = r.URL.Query().Get("cx")
		gotQ = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"title":"a"},{"title":"b"}],"searchInformation":{"totalResults":"240"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	count, err := c.Execute(context.Background(), "padel madrid", testCred)
	require.NoError(t, err)

	assert.Equal(t, 2, count, "item count wins over totalResults")
	assert.Equal(t, "key-123", gotKey)
	assert.Equal(t, "engine-456", gotCx)
	assert.Equal(t, "padel madrid", gotQ)
}

func TestExecute_TotalResultsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"searchInformation":{"totalResults":"17"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	count, err := c.Execute(context.Background(), "q", testCred)
	require.NoError(t, err)
	assert.Equal(t, 17, count)
}

func TestExecute_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"searchInformation":{"totalResults":"0"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	count, err := c.Execute(context.Background(), "q", testCred)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestExecute_ErrorClassification(t *testing.T) {
	t.Run("429 is a rate limit error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, 5*time.Second)
		_, err := c.Execute(context.Background(), "q", testCred)
		var rl *RateLimitError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, "c1", rl.CredentialID)
	})

	t.Run("5xx is transient and reached", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, 5*time.Second)
		_, err := c.Execute(context.Background(), "q", testCred)
		var te *TransientError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Reached())
		assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	})

	t.Run("4xx is permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, 5*time.Second)
		_, err := c.Execute(context.Background(), "q", testCred)
		require.Error(t, err)
		var te *TransientError
		assert.False(t, errors.As(err, &te), "4xx must not be retried")
		var rl *RateLimitError
		assert.False(t, errors.As(err, &rl))
	})

	t.Run("transport failure is transient and not reached", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse connections

		c := NewClient(srv.URL, time.Second)
		_, err := c.Execute(context.Background(), "q", testCred)
		var te *TransientError
		require.ErrorAs(t, err, &te)
		assert.False(t, te.Reached())
	})

	t.Run("malformed body is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"items": [truncated`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, 5*time.Second)
		_, err := c.Execute(context.Background(), "q", testCred)
		var te *TransientError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Reached())
	})
}

func TestExecute_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Execute(ctx, "q", testCred)
	require.Error(t, err)
}
