package sourceclient

import (
	"log/slog"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/config"
)

// New constructs the Source Client variant selected by cfg.AuthMode.
func New(cfg config.OpenEhrConfig, logger *slog.Logger) (Client, error) {
	policy := policyFromConfig(cfg.RetryMaxAttempts, cfg.RetryInitialDelayMs, cfg.RetryMaxDelayMs, cfg.RetryBackoffMultiplier)

	switch cfg.AuthMode {
	case config.SourceAuthBasic:
		return NewBasicClient(cfg.BaseURL, cfg.Username, cfg.Password, cfg.Timeout(), cfg.ConnectTimeout(), cfg.TLSVerify, policy, logger)
	case config.SourceAuthOAuth2:
		return NewOAuth2Client(cfg.BaseURL, cfg.TokenURL, cfg.ClientID, cfg.Username, cfg.Password, cfg.Timeout(), cfg.ConnectTimeout(), cfg.TLSVerify, policy, logger)
	default:
		return nil, atlaserrors.New(atlaserrors.Configuration, "unknown source auth mode %q", cfg.AuthMode)
	}
}
