package code

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials selects how requests to Judge0 are authenticated. The zero value
// talks to an unauthenticated local instance.
//
// AuthToken is sent as X-Auth-Token (self-hosted Judge0 with AUTHN_TOKEN).
// RapidAPIKey is sent as X-RapidAPI-Key; RapidAPIHost defaults to the base URL host.
// The OAuth fields enable a client-credentials bearer token for Judge0
// deployments that sit behind an OAuth2 gateway.
type Credentials struct {
	AuthToken    string `json:"auth_token,omitempty"`
	RapidAPIKey  string `json:"rapidapi_key,omitempty"`
	RapidAPIHost string `json:"rapidapi_host,omitempty"`

	OAuthClientID     string   `json:"oauth_client_id,omitempty"`
	OAuthClientSecret string   `json:"oauth_client_secret,omitempty"`
	OAuthTokenURL     string   `json:"oauth_token_url,omitempty"`
	OAuthScopes       []string `json:"oauth_scopes,omitempty"`
}

func (c Credentials) usesOAuth() bool {
	return c.OAuthClientID != "" && c.OAuthTokenURL != ""
}

// apply sets the header-based credentials on req.
func (c Credentials) apply(req *http.Request, baseURL string) {
	if c.AuthToken != "" {
		req.Header.Set("X-Auth-Token", c.AuthToken)
	}
	if c.RapidAPIKey != "" {
		host := c.RapidAPIHost
		if host == "" {
			if u, err := url.Parse(baseURL); err == nil {
				host = u.Host
			}
		}
		req.Header.Set("X-RapidAPI-Key", c.RapidAPIKey)
		req.Header.Set("X-RapidAPI-Host", host)
	}
}

// wrapClient returns base unchanged unless OAuth is configured, in which case
// requests go through an oauth2.Transport that fetches and refreshes the token.
// Token requests themselves use base.
func (c Credentials) wrapClient(base *http.Client) *http.Client {
	if !c.usesOAuth() {
		return base
	}
	cc := clientcredentials.Config{
		ClientID:     c.OAuthClientID,
		ClientSecret: c.OAuthClientSecret,
		TokenURL:     c.OAuthTokenURL,
		Scopes:       c.OAuthScopes,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: cc.TokenSource(ctx),
			Base:   transport,
		},
	}
}
