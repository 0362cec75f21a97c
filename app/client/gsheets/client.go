package gsheets

import (
	"context"
	"receiptagent/app/config"

	"github.com/samber/do"
	"github.com/samber/oops"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client authorizes per-user Sheets sessions. It keeps no per-user state:
// every Authorize call exchanges the given refresh token anew.
type Client struct {
	creds    *Credentials
	endpoint string
	pacer    *rate.Limiter
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	creds := NewCredentials(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenURL)

	return NewWithCredentials(creds, cfg.Google.SheetsEndpoint, cfg.Google.RequestsPerSecond), nil
}

func NewWithCredentials(creds *Credentials, endpoint string, requestsPerSecond float64) *Client {
	var pacer *rate.Limiter
	if requestsPerSecond > 0 {
		pacer = rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, int(requestsPerSecond)))
	}

	return &Client{
		creds:    creds,
		endpoint: endpoint,
		pacer:    pacer,
	}
}

func (c *Client) Authorize(ctx context.Context, refreshToken string) (*Session, error) {
	token, err := c.creds.Exchange(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(token)),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, oops.In("gsheets").Wrapf(err, "failed to create sheets service")
	}

	return &Session{
		svc:   svc,
		pacer: c.pacer,
	}, nil
}
