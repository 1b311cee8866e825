package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	roles []string
}

func (r *recorder) Notify(role string) { r.roles = append(r.roles, role) }

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.Notify("qa-engineer")
	assert.Equal(t, []string{"qa-engineer"}, a.roles)
	assert.Equal(t, []string{"qa-engineer"}, b.roles)
}

func TestLogNotifierWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewLog(zap.New(core)).Notify("devops-engineer")
	entries := logs.FilterMessage("wake role").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "devops-engineer", entries[0].ContextMap()["role"])
}

func TestWebhookPostsPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		received []WakePayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload WakePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook, err := NewWebhook(srv.URL)
	require.NoError(t, err)
	hook.Notify("lead-developer")
	hook.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "lead-developer", received[0].Role)
	assert.NotEmpty(t, received[0].EventID)
}

func TestWebhookLogsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	core, logs := observer.New(zap.WarnLevel)
	hook, err := NewWebhook(srv.URL, WithWebhookLogger(zap.New(core)))
	require.NoError(t, err)
	hook.Notify("ux-designer")
	hook.Wait()
	assert.Equal(t, 1, logs.FilterMessage("webhook delivery failed").Len())
}

func TestNewWebhookRejectsBadURL(t *testing.T) {
	_, err := NewWebhook("ftp://example.com")
	assert.Error(t, err)
}
