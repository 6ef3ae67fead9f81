package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/feedback-desk/internal/config"
	"github.com/kingrea/feedback-desk/internal/form"
)

func TestHTTPPostsJSONPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	payload := form.Payload{
		Language: "hindi",
		Name:     "Ravi",
		Address:  "Tilottama",
		Phone:    "+977 9811111111",
		Details:  "Library closes early",
		Images:   []form.Attachment{{ID: "att-1", EmbeddedData: "data:image/png;base64,AA==", DisplayName: "desk.png"}},
	}
	require.NoError(t, HTTP{Endpoint: srv.URL}.Submit(context.Background(), payload))

	assert.Equal(t, "hindi", got["language"])
	assert.Equal(t, "Library closes early", got["details"])
	images, ok := got["images"].([]any)
	require.True(t, ok)
	require.Len(t, images, 1)
	first := images[0].(map[string]any)
	assert.Equal(t, "att-1", first["id"])
	assert.Equal(t, "desk.png", first["displayName"])
	assert.Equal(t, "data:image/png;base64,AA==", first["embeddedData"])
}

func TestHTTPNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := HTTP{Endpoint: srv.URL}.Submit(context.Background(), form.Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPUnreachableIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	assert.Error(t, HTTP{Endpoint: url}.Submit(context.Background(), form.Payload{}))
}

func TestSimulatedHonoursContextAndFailFlag(t *testing.T) {
	assert.NoError(t, Simulated{}.Submit(context.Background(), form.Payload{}))
	assert.Error(t, Simulated{Fail: true}.Submit(context.Background(), form.Payload{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Simulated{Delay: time.Hour}.Submit(ctx, form.Payload{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSelectsTransportByMode(t *testing.T) {
	tr, err := New(config.TransportConfig{Mode: config.TransportSimulated, SimulatedDelay: time.Second})
	require.NoError(t, err)
	assert.Equal(t, Simulated{Delay: time.Second}, tr)

	tr, err = New(config.TransportConfig{Mode: config.TransportHTTP, Endpoint: "http://127.0.0.1:1/submissions", Timeout: 3 * time.Second})
	require.NoError(t, err)
	httpTr, ok := tr.(HTTP)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, httpTr.Client.Timeout)

	_, err = New(config.TransportConfig{Mode: config.TransportHTTP})
	assert.Error(t, err)
	_, err = New(config.TransportConfig{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}
