package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmailService(url string, attempts int) *EmailService {
	svc := NewEmailService(url, "key", "Shop <shop@example.com>", attempts)
	svc.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return svc
}

func TestEmailService_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	var got EmailMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	err := newTestEmailService(server.URL, 3).Send(context.Background(), EmailMessage{To: "a@example.com", Subject: "hi"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, "Shop <shop@example.com>", got.From)
}

func TestEmailService_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := newTestEmailService(server.URL, 2).Send(context.Background(), EmailMessage{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.EqualValues(t, 2, calls.Load())
}

func TestEmailService_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	err := newTestEmailService(server.URL, 5).Send(context.Background(), EmailMessage{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.EqualValues(t, 1, calls.Load())
}

func TestEmailService_NotConfigured(t *testing.T) {
	err := NewEmailService("", "", "", 3).Send(context.Background(), EmailMessage{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
