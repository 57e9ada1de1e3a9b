package sourceclient

import (
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// newHTTPClient builds the shared transport both auth variants use: a
// per-request timeout, a separate dial (connect) timeout, and an opt-out
// TLS verification knob that must loudly warn when disabled (§4.2).
func newHTTPClient(timeout, connectTimeout time.Duration, tlsVerify bool, logger *slog.Logger) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}

	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}

	if !tlsVerify {
		logger.Warn("TLS certificate verification is DISABLED for the openEHR source client; " +
			"this should never be used against a production server")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-out, logged loudly above
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func policyFromConfig(maxAttempts int, initialDelayMs, maxDelayMs int64, backoffMultiplier float64) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialDelay:      time.Duration(initialDelayMs) * time.Millisecond,
		BackoffMultiplier: backoffMultiplier,
		MaxDelay:          time.Duration(maxDelayMs) * time.Millisecond,
	}
}
