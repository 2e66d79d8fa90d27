package alert

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyWebhookRetriesOn5xxThenSucceeds(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(nil, nil)
	err := n.NotifyWebhook(Action{URL: srv.URL}, map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestNotifyWebhookRendersTemplate(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(b)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(nil, nil)
	err := n.NotifyWebhook(Action{URL: srv.URL, Template: "alert: {{.name}} score {{.score}}"}, map[string]interface{}{"name": "low_score", "score": 12})
	require.NoError(t, err)
	assert.Contains(t, body, "alert: low_score score 12")
}

func TestNotifyWebhookMissingURLErrors(t *testing.T) {
	n := NewNotifier(nil, nil)
	err := n.NotifyWebhook(Action{}, map[string]interface{}{})
	assert.Error(t, err)
}

func TestNotifyConsoleDoesNotError(t *testing.T) {
	n := NewNotifier(nil, nil)
	err := n.NotifyConsole(Action{Level: "warn", Message: "careful"}, map[string]interface{}{"x": 1})
	assert.NoError(t, err)
}
