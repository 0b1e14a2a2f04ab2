package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// PlumConfig holds the SMS verification provider credentials.
type PlumConfig struct {
	BaseURL  string
	Username string
	Password string
	Enabled  bool
}

// PlumClient sends and confirms phone one-time codes through Plum. The
// provider token is cached and refreshed once when a call returns 401.
type PlumClient struct {
	cfg    PlumConfig
	client *http.Client

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// NewPlumClient constructs a PlumClient.
func NewPlumClient(cfg PlumConfig) *PlumClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PlumClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether phone verification is available.
func (p *PlumClient) Enabled() bool {
	return p.cfg.Enabled
}

type plumAuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (p *PlumClient) getToken(ctx context.Context, force bool) (string, error) {
	if !force {
		p.mu.RLock()
		if p.token != "" && time.Now().Before(p.tokenExpiry) {
			t := p.token
			p.mu.RUnlock()
			return t, nil
		}
		p.mu.RUnlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock.
	if !force && p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"username": p.cfg.Username,
		"password": p.cfg.Password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("plum auth request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("plum auth request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("plum auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var authResp plumAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", fmt.Errorf("plum auth unmarshal: %w", err)
	}
	if authResp.Token == "" {
		return "", errors.New("plum auth: empty token")
	}

	p.token = authResp.Token
	if authResp.ExpiresIn > 0 {
		p.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - 30*time.Second)
	} else {
		p.tokenExpiry = time.Now().Add(55 * time.Minute)
	}

	return p.token, nil
}

func (p *PlumClient) post(ctx context.Context, path string, payload any, out any) error {
	if !p.cfg.Enabled {
		return ErrNotConfigured
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("plum request marshal: %w", err)
	}
	url := p.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")

	do := func(token string) (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return 0, nil, fmt.Errorf("plum request build: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := p.client.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("plum request: %w", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, body, nil
	}

	token, err := p.getToken(ctx, false)
	if err != nil {
		return err
	}
	status, body, err := do(token)
	if err != nil {
		return err
	}

	// Retry once on 401.
	if status == http.StatusUnauthorized {
		if token, err = p.getToken(ctx, true); err != nil {
			return err
		}
		if status, body, err = do(token); err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: plum %s status %d, body: %s", ErrProviderFailed, path, status, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("plum %s unmarshal: %w", path, err)
		}
	}
	return nil
}

// SendCode starts phone verification and returns the provider session id.
func (p *PlumClient) SendCode(ctx context.Context, phone string) (string, error) {
	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := p.post(ctx, "verification/send", map[string]string{"phone": phone}, &result); err != nil {
		return "", err
	}
	return result.SessionID, nil
}

// CheckCode confirms a code against a session started by SendCode.
func (p *PlumClient) CheckCode(ctx context.Context, sessionID, code string) (bool, error) {
	var result struct {
		Verified bool `json:"verified"`
	}
	if err := p.post(ctx, "verification/confirm", map[string]string{
		"session_id": sessionID,
		"code":       code,
	}, &result); err != nil {
		return false, err
	}
	return result.Verified, nil
}
