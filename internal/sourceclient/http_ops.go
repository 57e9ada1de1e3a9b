package sourceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/obsmetrics"
)

// authSetter attaches whatever credentials the active variant uses to an
// outgoing request.
type authSetter func(ctx context.Context, req *http.Request) error

// classifyStatus maps an HTTP status code to the §4.1 error taxonomy.
func classifyStatus(status int, body string) *atlaserrors.Error {
	switch {
	case status == http.StatusNotFound:
		return atlaserrors.New(atlaserrors.SourceNotFound, "source returned 404: %s", body)
	case status == http.StatusTooManyRequests:
		return atlaserrors.New(atlaserrors.SourceRateLimited, "source returned 429: %s", body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return atlaserrors.New(atlaserrors.SourceAuth, "source returned %d: %s", status, body)
	case status >= 500:
		return atlaserrors.New(atlaserrors.SourceConnection, "source returned %d: %s", status, body)
	case status >= 400:
		return atlaserrors.New(atlaserrors.SourceQueryFailed, "source returned %d: %s", status, body)
	default:
		return nil
	}
}

// runAQL posts an AQL query and returns the decoded rows, retrying transport
// and 5xx/429 failures with backoff.
func runAQL(ctx context.Context, hc *http.Client, baseURL, query string, setAuth authSetter, policy RetryPolicy) (aqlResponse, error) {
	return withRetry(ctx, policy, func(attempt int, err error) {
		obsmetrics.SourceRetriesTotal.WithLabelValues("aql").Inc()
	}, func(ctx context.Context) (aqlResponse, error) {
		body, err := json.Marshal(aqlRequest{Q: query})
		if err != nil {
			return aqlResponse{}, atlaserrors.Wrap(atlaserrors.Serialization, err, "marshalling AQL request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/rest/openehr/v1/query/aql", bytes.NewReader(body))
		if err != nil {
			return aqlResponse{}, atlaserrors.Wrap(atlaserrors.Other, err, "building AQL request")
		}
		req.Header.Set("Content-Type", "application/json")
		if err := setAuth(ctx, req); err != nil {
			return aqlResponse{}, err
		}

		resp, err := hc.Do(req)
		if err != nil {
			return aqlResponse{}, atlaserrors.Wrap(atlaserrors.SourceConnection, err, "calling openEHR AQL endpoint")
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			if classified := classifyStatus(resp.StatusCode, string(respBody)); classified != nil {
				return aqlResponse{}, classified
			}
		}

		var parsed aqlResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return aqlResponse{}, atlaserrors.Wrap(atlaserrors.SourceInvalidResponse, err, "decoding AQL response")
		}
		return parsed, nil
	})
}

// fetchFlatComposition performs the FLAT composition GET, retrying
// transport/5xx/429 failures. acceptHeader and formatQuery let the two auth
// variants select FLAT encoding their own way (§4.2): Variant A uses
// ?format=FLAT, Variant B uses an Accept header.
func fetchFlatComposition(ctx context.Context, hc *http.Client, baseURL, subjectID, uid string, setAuth authSetter, acceptHeader, formatQuery string, policy RetryPolicy) (json.RawMessage, error) {
	return withRetry(ctx, policy, func(attempt int, err error) {
		obsmetrics.SourceRetriesTotal.WithLabelValues("fetch_composition").Inc()
	}, func(ctx context.Context) (json.RawMessage, error) {
		url := fmt.Sprintf("%s/rest/openehr/v1/ehr/%s/composition/%s", baseURL, subjectID, uid)
		if formatQuery != "" {
			url += "?" + formatQuery
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, atlaserrors.Wrap(atlaserrors.Other, err, "building composition fetch request")
		}
		if acceptHeader != "" {
			req.Header.Set("Accept", acceptHeader)
		}
		if err := setAuth(ctx, req); err != nil {
			return nil, err
		}

		resp, err := hc.Do(req)
		if err != nil {
			return nil, atlaserrors.Wrap(atlaserrors.SourceConnection, err, "calling openEHR composition endpoint")
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			if classified := classifyStatus(resp.StatusCode, string(respBody)); classified != nil {
				return nil, classified
			}
		}

		return json.RawMessage(respBody), nil
	})
}
