package notification

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
	"go.uber.org/zap/zaptest"

	"github.com/bher20/carparkmanager/internal/alerting"
)

func TestEmailNotifier_DisabledIsNoop(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{}, zaptest.NewLogger(t))
	assert.NoError(t, n.ReportRefreshFailure(context.Background(), alerting.RefreshFailure{ConsecutiveFailures: 9}))
	assert.Error(t, n.SendEmail(context.Background(), "s", "b", "<p>b</p>"))
}

func TestEmailNotifier_SendsThroughSendgrid(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		payload struct {
			Subject          string `json:"subject"`
			Personalizations []struct {
				To []struct {
					Email string `json:"email"`
				} `json:"to"`
			} `json:"personalizations"`
			Content []struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"content"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewEmailNotifier(EmailConfig{
		APIKey:      "SG.test",
		Host:        srv.URL,
		FromAddress: "ops@example.org",
		To:          []string{"a@example.org", "b@example.org"},
	}, zaptest.NewLogger(t))

	err := n.ReportRefreshFailure(context.Background(), alerting.RefreshFailure{
		CycleID:             "c-1",
		Attempts:            3,
		Error:               "upstream returned status 500 <boom>",
		ConsecutiveFailures: 2,
		StartedAt:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "/v3/mail/send", gotPath)
	assert.Equal(t, "Bearer SG.test", gotAuth)
	assert.Equal(t, "Car park feed refresh failed (2 in a row)", payload.Subject)
	require.Len(t, payload.Personalizations, 1)
	assert.Len(t, payload.Personalizations[0].To, 2)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Contains(t, payload.Content[0].Value, "<boom>")
	assert.Contains(t, payload.Content[1].Value, "&lt;boom&gt;")
}

func TestEmailNotifier_ThresholdAndErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	n := NewEmailNotifier(EmailConfig{
		APIKey:                 "SG.bad",
		Host:                   srv.URL,
		FromAddress:            "ops@example.org",
		To:                     []string{"a@example.org"},
		MinFailuresBeforeEmail: 2,
	}, zaptest.NewLogger(t))

	require.NoError(t, n.ReportRefreshFailure(context.Background(), alerting.RefreshFailure{ConsecutiveFailures: 1}))
	assert.Equal(t, 0, calls)

	err := n.ReportRefreshFailure(context.Background(), alerting.RefreshFailure{ConsecutiveFailures: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1, calls)
}

func TestRenderFailure_PlainTextKeepsAngleBrackets(t *testing.T) {
	plain, htmlBody := renderFailure(alerting.RefreshFailure{
		CycleID:  "c-7",
		Attempts: 2,
		Error:    "parse: expected <CarPark> but got a < b > c",
	})

	assert.Contains(t, plain, "Error: parse: expected <CarPark> but got a < b > c\n")
	assert.Contains(t, plain, "Cycle: c-7\n")
	assert.Contains(t, plain, "Last success: never\n")
	assert.NotContains(t, plain, "<li>")

	assert.Contains(t, htmlBody, "<li>Error: parse: expected &lt;CarPark&gt; but got a &lt; b &gt; c</li>")
	assert.Contains(t, htmlBody, "<li>Attempts: 2</li>")
}
