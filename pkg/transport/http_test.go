package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroomkit/beacon-go/pkg/event"
)

func TestNewHTTPRejectsBadEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"empty", ""},
		{"no scheme", "collect.example.com/v1"},
		{"wrong scheme", "ftp://collect.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTP(HTTPConfig{Endpoint: tt.endpoint})
			assert.Error(t, err)
		})
	}
}

func TestHTTPSendPostsJSONArray(t *testing.T) {
	var (
		gotMethod      string
		gotContentType string
		gotUserAgent   string
		gotSiteKey     string
		gotBody        []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		gotSiteKey = r.Header.Get("X-Site-Key")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	transport, err := NewHTTP(HTTPConfig{
		Endpoint:  server.URL,
		SiteKey:   "site-key-1",
		UserAgent: "beacon-go-test",
	})
	require.NoError(t, err)

	batch := []event.Event{
		{SiteID: "news-site", SessionID: "s1", UserID: "u1", Type: event.TypeScreenView, Timestamp: event.At(time.Now())},
		{SiteID: "news-site", SessionID: "s1", UserID: "u1", Type: event.TypeHeartbeat, Timestamp: event.At(time.Now())},
	}

	result, err := transport.Send(context.Background(), batch)
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, http.StatusNoContent, result.Status)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "beacon-go-test", gotUserAgent)
	assert.Equal(t, "site-key-1", gotSiteKey)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "screen_view", decoded[0]["event_type"])
	assert.Equal(t, "heartbeat", decoded[1]["event_type"])
}

func TestHTTPSendRejectedBatch(t *testing.T) {
	tests := []struct {
		name   string
		status int
		ok     bool
	}{
		{"accepted", http.StatusOK, true},
		{"created", http.StatusCreated, true},
		{"bad request", http.StatusBadRequest, false},
		{"server error", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			transport, err := NewHTTP(HTTPConfig{Endpoint: server.URL})
			require.NoError(t, err)

			result, err := transport.Send(context.Background(), []event.Event{{SiteID: "s"}})
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.ok, result.OK())
		})
	}
}

func TestHTTPSendNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	transport, err := NewHTTP(HTTPConfig{Endpoint: endpoint})
	require.NoError(t, err)

	result, err := transport.Send(context.Background(), []event.Event{{SiteID: "s"}})
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestHTTPSendHonorsContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	transport, err := NewHTTP(HTTPConfig{Endpoint: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = transport.Send(ctx, []event.Event{{SiteID: "s"}})
	assert.Error(t, err)
}
