// Package auth provides bearer tokens for the Domo API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the client credentials token endpoint of the public Domo API.
const DefaultTokenURL = "https://api.domo.com/oauth/token"

// ScopeData grants access to datasets and streams.
const ScopeData = "data"

// TokenProvider returns a currently valid bearer token.
// Implementations refresh expired tokens transparently.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ClientCredentialsParams ...
type ClientCredentialsParams struct {
	ClientID     string
	ClientSecret string
	// Scopes defaults to ScopeData.
	Scopes []string
	// TokenURL defaults to DefaultTokenURL.
	TokenURL string
	// HTTPClient is used for token requests. Optional.
	HTTPClient *http.Client
	Logger     log.Logger
}

// ClientCredentials fetches tokens with the OAuth2 client credentials grant
// and caches them until they expire.
type ClientCredentials struct {
	config     clientcredentials.Config
	httpClient *http.Client
	logger     log.Logger

	mu           sync.Mutex
	token        *oauth2.Token
	refreshCount int
}

// NewClientCredentials ...
func NewClientCredentials(params ClientCredentialsParams) (*ClientCredentials, error) {
	if params.ClientID == "" {
		return nil, errors.New("client ID is empty")
	}
	if params.ClientSecret == "" {
		return nil, errors.New("client secret is empty")
	}

	scopes := params.Scopes
	if len(scopes) == 0 {
		scopes = []string{ScopeData}
	}
	tokenURL := params.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	logger := params.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	return &ClientCredentials{
		config: clientcredentials.Config{
			ClientID:     params.ClientID,
			ClientSecret: params.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: params.HTTPClient,
		logger:     logger,
	}, nil
}

// Token returns the cached access token, requesting a new one when the cached
// token is missing or expired.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token.AccessToken, nil
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	token, err := c.config.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("request access token: %w", err)
	}

	if c.token != nil {
		c.refreshCount++
	}
	c.token = token
	c.logger.Debugf("Access token acquired (refresh count: %d, expires: %s)", c.refreshCount, token.Expiry.Format("15:04:05"))

	return token.AccessToken, nil
}

// RefreshCount returns how many times an expired token was replaced.
func (c *ClientCredentials) RefreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshCount
}

// StaticToken is a TokenProvider for a pre-issued token.
type StaticToken string

// Token ...
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("static token is empty")
	}
	return string(t), nil
}
