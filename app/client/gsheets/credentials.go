package gsheets

import (
	"context"

	"golang.org/x/oauth2"
)

var Scopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.readonly",
}

// Credentials turns a long-lived refresh token into a short-lived access token.
// It performs exactly one token endpoint round trip per call and never retries.
type Credentials struct {
	oauth *oauth2.Config
}

func NewCredentials(clientID, clientSecret, tokenURL string) *Credentials {
	return &Credentials{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: Scopes,
		},
	}
}

func (c *Credentials) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}

	token, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, &AuthenticationError{Err: err}
	}

	return token, nil
}
