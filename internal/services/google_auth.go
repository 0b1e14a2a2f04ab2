package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProfile is the subset of the userinfo response the login flow needs.
type GoogleProfile struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// GoogleAuth runs the OAuth2 authorization-code flow against Google.
type GoogleAuth struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleAuth constructs GoogleAuth.
func NewGoogleAuth(clientID, clientSecret, redirectURL string) *GoogleAuth {
	return &GoogleAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// Enabled reports whether client credentials are configured.
func (g *GoogleAuth) Enabled() bool {
	return g.config.ClientID != "" && g.config.ClientSecret != ""
}

// AuthCodeURL is where the browser is sent to consent.
func (g *GoogleAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for the user's profile.
func (g *GoogleAuth) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	if !g.Enabled() {
		return nil, ErrNotConfigured
	}

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: google exchange: %v", ErrProviderFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: google userinfo: %v", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: google userinfo status %d: %s", ErrProviderFailed, resp.StatusCode, string(body))
	}

	var profile GoogleProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("google userinfo unmarshal: %w", err)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: google profile has no email", ErrProviderFailed)
	}
	return &profile, nil
}
