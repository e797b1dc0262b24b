package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

func TestExpoPush_Send(t *testing.T) {
	var got []expoMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/--/api/v2/push/send", r.URL.Path)
		assert.Equal(t, "Bearer expo-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"data":[{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}},{"status":"ok","id":"ticket-2"}]}`)
	}))
	defer srv.Close()

	p := NewExpoPush(config.PushConfig{BaseURL: srv.URL + "/", AccessToken: "expo-token", RatePerSec: 100})
	assert.Equal(t, Push, p.Channel())

	id, err := p.Send(context.Background(), Message{
		To:    []string{"ExponentPushToken[a]", "ExponentPushToken[b]"},
		Title: "Read",
		Body:  "Keep going",
		Data:  map[string]string{"goalId": "g1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ticket-2", id)
	require.Len(t, got, 2)
	assert.Equal(t, "ExponentPushToken[b]", got[1].To)
	assert.Equal(t, "g1", got[0].Data["goalId"])
}

func TestExpoPush_AllTicketsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"status":"error","message":"bad","details":{"error":"DeviceNotRegistered"}}]}`)
	}))
	defer srv.Close()

	p := NewExpoPush(config.PushConfig{BaseURL: srv.URL, RatePerSec: 100})
	_, err := p.Send(context.Background(), Message{To: []string{"x"}, Body: "hi"})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "DeviceNotRegistered")

	_, err = p.Send(context.Background(), Message{Body: "hi"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestResendEmail_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_key", r.Header.Get("Authorization"))
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "goals@example.com", in["from"])
		assert.Equal(t, "Reminder", in["subject"])
		assert.Equal(t, "<p>5 &lt; 6</p>", in["html"])
		_, _ = io.WriteString(w, `{"id":"email-1"}`)
	}))
	defer srv.Close()

	e := NewResendEmail(config.EmailConfig{BaseURL: srv.URL, APIKey: "re_key", From: "goals@example.com", RatePerSec: 100})
	id, err := e.Send(context.Background(), Message{To: []string{"a@example.com"}, Title: "Reminder", Body: "5 < 6"})
	require.NoError(t, err)
	assert.Equal(t, "email-1", id)
}

func TestResendEmail_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"statusCode":422,"message":"Invalid to field","name":"validation_error"}`)
	}))
	defer srv.Close()

	e := NewResendEmail(config.EmailConfig{BaseURL: srv.URL, APIKey: "k", From: "f@example.com", RatePerSec: 100})
	_, err := e.Send(context.Background(), Message{To: []string{"bad"}, Body: "x"})
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Invalid to field")
	assert.Contains(t, err.Error(), "422")
}

func TestTwilioWhatsApp_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "tw-secret", pass)

		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		assert.Equal(t, "whatsapp:+15550001111", form.Get("From"))
		assert.Equal(t, "whatsapp:+447700900123", form.Get("To"))
		assert.Equal(t, "Save a little today", form.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"sid":"SM1"}`)
	}))
	defer srv.Close()

	wa := NewTwilioWhatsApp(config.WhatsAppConfig{
		BaseURL: srv.URL, AccountSID: "AC123", AuthToken: "tw-secret", From: "+15550001111", RatePerSec: 100,
	})
	id, err := wa.Send(context.Background(), Message{To: []string{"+447700900123"}, Body: "Save a little today"})
	require.NoError(t, err)
	assert.Equal(t, "SM1", id)
}

func TestSend_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewResendEmail(config.EmailConfig{BaseURL: srv.URL, APIKey: "k", From: "f@example.com", RatePerSec: 100})
	_, err := e.Send(ctx, Message{To: []string{"a@example.com"}, Body: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("whatsapp")
	require.NoError(t, err)
	assert.Equal(t, WhatsApp, c)
	_, err = ParseChannel("sms")
	assert.Error(t, err)
}
