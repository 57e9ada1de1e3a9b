package sourceclient

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/ids"
)

// BasicClient is Source Client Variant A: one Authorization: Basic header
// built from static credentials, attached to every request. Authenticate is
// a no-op beyond validating that credentials are present (§4.2).
type BasicClient struct {
	baseURL    string
	authHeader string
	hc         *http.Client
	policy     RetryPolicy
	logger     *slog.Logger
}

// NewBasicClient constructs a Variant A Source Client.
func NewBasicClient(baseURL, username, password string, timeout, connectTimeout time.Duration, tlsVerify bool, policy RetryPolicy, logger *slog.Logger) (*BasicClient, error) {
	if username == "" || password == "" {
		return nil, atlaserrors.New(atlaserrors.Configuration, "basic auth requires both username and password")
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return &BasicClient{
		baseURL:    baseURL,
		authHeader: "Basic " + encoded,
		hc:         newHTTPClient(timeout, connectTimeout, tlsVerify, logger),
		policy:     policy,
		logger:     logger,
	}, nil
}

func (c *BasicClient) setAuth(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", c.authHeader)
	return nil
}

// Authenticate validates that credentials were supplied; there is no
// network round trip for Basic auth.
func (c *BasicClient) Authenticate(_ context.Context) error {
	return nil
}

func (c *BasicClient) IsAuthenticated() bool { return true }
func (c *BasicClient) BaseURL() string       { return c.baseURL }

func (c *BasicClient) EnumerateSubjectIDs(ctx context.Context) ([]ids.SubjectId, error) {
	return enumerateSubjectIDs(ctx, c.hc, c.baseURL, c.setAuth, c.policy, c.logger)
}

func (c *BasicClient) ListCompositions(ctx context.Context, subject ids.SubjectId, template ids.TemplateId, since *time.Time) ([]composition.Metadata, error) {
	return listCompositions(ctx, c.hc, c.baseURL, subject, template, since, c.setAuth, c.policy, c.logger)
}

func (c *BasicClient) FetchComposition(ctx context.Context, meta composition.Metadata) (composition.Composition, error) {
	body, err := fetchFlatComposition(ctx, c.hc, c.baseURL, meta.SubjectID.String(), meta.UID.String(), c.setAuth, "", "format=FLAT", c.policy)
	if err != nil {
		return composition.Composition{}, err
	}
	return buildComposition(meta, body)
}
