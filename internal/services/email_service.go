package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// EmailMessage is a transactional email.
type EmailMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailService posts messages to an HTTP transactional email API, retrying
// transient failures a bounded number of times with exponential backoff.
type EmailService struct {
	apiURL     string
	apiKey     string
	from       string
	attempts   int
	client     *http.Client
	newBackOff func() backoff.BackOff
}

// NewEmailService creates a new EmailService.
func NewEmailService(apiURL, apiKey, from string, attempts int) *EmailService {
	if attempts < 1 {
		attempts = 1
	}
	return &EmailService{
		apiURL:   apiURL,
		apiKey:   apiKey,
		from:     from,
		attempts: attempts,
		client:   &http.Client{Timeout: 15 * time.Second},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Send delivers msg, filling From when empty.
func (s *EmailService) Send(ctx context.Context, msg EmailMessage) error {
	if s.apiURL == "" {
		log.Println("[Email] API URL not configured")
		return ErrNotConfigured
	}
	if msg.From == "" {
		msg.From = s.from
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("email api status %d: %s", resp.StatusCode, string(respBody))
		default:
			return backoff.Permanent(fmt.Errorf("email api status %d: %s", resp.StatusCode, string(respBody)))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.attempts-1)), ctx)
	err = backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		log.Printf("[Email] attempt %d to %s failed, retrying in %s: %v", attempt, msg.To, wait, err)
	})
	if err != nil {
		log.Printf("[Email] giving up on %s after %d attempts: %v", msg.To, attempt, err)
		return fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return nil
}
