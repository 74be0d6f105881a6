package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/shift-coverage-coordinator/internal/adapters/out/logger"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

func testNotification() domain.Notification {
	return domain.Notification{
		ShiftID: uuid.MustParse("0b6f0a9e-2f1c-4b7e-9a53-5d1f8c3e2a10"),
		Kind:    domain.NotificationKindEscalated,
		Urgency: domain.UrgencyHigh,
		Summary: "Shift S-200 needs manual coverage",
		Waves:   2,
	}
}

func TestTelegramNotifier(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Coordinator","username":"coordinator_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			form = map[string]string{
				"chat_id":              r.PostForm.Get("chat_id"),
				"text":                 r.PostForm.Get("text"),
				"disable_notification": r.PostForm.Get("disable_notification"),
			}
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"group"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	api, err := tgbotapi.NewBotAPIWithClient("token", server.URL+"/bot%s/%s", server.Client())
	require.NoError(t, err)

	notifier := newTelegramNotifier(api, -100, logger.NewDiscardLogger())
	require.NoError(t, notifier.Notify(context.Background(), testNotification()))

	assert.Equal(t, "-100", form["chat_id"])
	assert.Contains(t, form["text"], "HIGH [escalated]")
	assert.Contains(t, form["text"], "Shift S-200 needs manual coverage")
	assert.Contains(t, form["text"], "0b6f0a9e-2f1c-4b7e-9a53-5d1f8c3e2a10")
	assert.NotEqual(t, "true", form["disable_notification"])
}

func TestTelegramNotifier_ApiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Coordinator"}}`))
			return
		}
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"chat not found"}`))
	}))
	defer server.Close()

	api, err := tgbotapi.NewBotAPIWithClient("token", server.URL+"/bot%s/%s", server.Client())
	require.NoError(t, err)

	err = newTelegramNotifier(api, 1, logger.NewDiscardLogger()).Notify(context.Background(), testNotification())
	assert.ErrorContains(t, err, "chat not found")
}

func TestFormatText_Meltdown(t *testing.T) {
	text := formatText(domain.Notification{
		ShiftID: uuid.Nil,
		Kind:    domain.NotificationKindMeltdown,
		Urgency: domain.UrgencyCritical,
		Summary: "Automated outreach halted",
	})
	assert.True(t, strings.HasPrefix(text, "🚨 CRITICAL [meltdown]"))
	assert.NotContains(t, text, "Shift id")
}

func TestWebhookNotifier(t *testing.T) {
	var received domain.Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, time.Second, logger.NewDiscardLogger())
	require.NoError(t, notifier.Notify(context.Background(), testNotification()))
	assert.Equal(t, 2, received.Waves)
	assert.Equal(t, domain.UrgencyHigh, received.Urgency)
}

func TestWebhookNotifier_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, time.Second, logger.NewDiscardLogger()).Notify(context.Background(), testNotification())
	assert.ErrorContains(t, err, "500")
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	r.calls++
	return r.err
}

func TestMultiNotifier(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}

	err := NewMultiNotifier(failing, ok, NewLogNotifier(logger.NewDiscardLogger())).Notify(context.Background(), testNotification())
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)

	assert.NoError(t, NewMultiNotifier(ok).Notify(context.Background(), testNotification()))
}
