package sourceclient

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/ids"
)

// refreshMargin is how far ahead of expiry the client proactively refreshes
// the access token (§4.2).
const refreshMargin = 60 * time.Second

// OAuth2Client is Source Client Variant B: password-grant OAuth2 with
// automatic refresh, sending FLAT composition requests via an Accept header
// rather than a query parameter.
type OAuth2Client struct {
	baseURL  string
	username string
	password string
	cfg      oauth2.Config

	hc     *http.Client
	policy RetryPolicy
	logger *slog.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewOAuth2Client constructs a Variant B Source Client.
func NewOAuth2Client(baseURL, tokenURL, clientID, username, password string, timeout, connectTimeout time.Duration, tlsVerify bool, policy RetryPolicy, logger *slog.Logger) (*OAuth2Client, error) {
	if username == "" || password == "" {
		return nil, atlaserrors.New(atlaserrors.Configuration, "oauth2 auth requires both username and password")
	}
	if tokenURL == "" {
		return nil, atlaserrors.New(atlaserrors.Configuration, "oauth2 auth requires a token URL")
	}
	return &OAuth2Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		cfg: oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
		},
		hc:     newHTTPClient(timeout, connectTimeout, tlsVerify, logger),
		policy: policy,
		logger: logger,
	}, nil
}

// Authenticate performs the initial password-grant token exchange.
func (c *OAuth2Client) Authenticate(ctx context.Context) error {
	tok, err := c.cfg.PasswordCredentialsToken(ctx, c.username, c.password)
	if err != nil {
		return atlaserrors.Wrap(atlaserrors.SourceAuth, err, "oauth2 password grant failed")
	}
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return nil
}

// ensureAuthenticated returns a valid access token, refreshing it first if
// fewer than refreshMargin remain before expiry.
func (c *OAuth2Client) ensureAuthenticated(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()

	if tok == nil {
		return "", atlaserrors.New(atlaserrors.SourceAuth, "oauth2 client has not authenticated yet")
	}

	if !tok.Expiry.IsZero() && time.Until(tok.Expiry) < refreshMargin {
		refreshed, err := c.refresh(ctx, tok)
		if err != nil {
			return "", err
		}
		tok = refreshed
	}

	return tok.AccessToken, nil
}

func (c *OAuth2Client) refresh(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	if stale.RefreshToken == "" {
		return nil, atlaserrors.New(atlaserrors.SourceAuth, "oauth2 token expired and no refresh token is available")
	}

	src := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: stale.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.SourceAuth, err, "refreshing oauth2 token")
	}

	c.mu.Lock()
	c.token = fresh
	c.mu.Unlock()

	c.logger.Debug("refreshed oauth2 access token", "expiry", fresh.Expiry)
	return fresh, nil
}

func (c *OAuth2Client) setAuth(ctx context.Context, req *http.Request) error {
	accessToken, err := c.ensureAuthenticated(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return nil
}

func (c *OAuth2Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil && (c.token.Expiry.IsZero() || time.Until(c.token.Expiry) > 0)
}

func (c *OAuth2Client) BaseURL() string { return c.baseURL }

const flatAcceptHeader = "application/openehr.wt.flat+json"

func (c *OAuth2Client) EnumerateSubjectIDs(ctx context.Context) ([]ids.SubjectId, error) {
	return enumerateSubjectIDs(ctx, c.hc, c.baseURL, c.setAuth, c.policy, c.logger)
}

func (c *OAuth2Client) ListCompositions(ctx context.Context, subject ids.SubjectId, template ids.TemplateId, since *time.Time) ([]composition.Metadata, error) {
	return listCompositions(ctx, c.hc, c.baseURL, subject, template, since, c.setAuth, c.policy, c.logger)
}

func (c *OAuth2Client) FetchComposition(ctx context.Context, meta composition.Metadata) (composition.Composition, error) {
	body, err := fetchFlatComposition(ctx, c.hc, c.baseURL, meta.SubjectID.String(), meta.UID.String(), c.setAuth, flatAcceptHeader, "", c.policy)
	if err != nil {
		return composition.Composition{}, err
	}
	return buildComposition(meta, body)
}
