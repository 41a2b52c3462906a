package revocation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/config"
)

// TokenRevoker revokes access tokens bound to a consent at the authorization
// server. Called only after the revoking transaction has committed; a failure
// is reported to the caller but the consent stays revoked.
type TokenRevoker interface {
	RevokeTokens(ctx context.Context, consentID, clientID, userID string) error
}

// RevocationRequest is the payload posted to the revocation endpoint
type RevocationRequest struct {
	ConsentID string `json:"consentId"`
	ClientID  string `json:"clientId"`
	UserID    string `json:"userId,omitempty"`
}

// HTTPTokenRevoker calls an external token revocation endpoint
type HTTPTokenRevoker struct {
	httpClient *http.Client
	config     *config.TokenRevocationConfig
	logger     *logrus.Logger
}

// NewHTTPTokenRevoker creates a token revoker against the configured endpoint
func NewHTTPTokenRevoker(cfg *config.TokenRevocationConfig, logger *logrus.Logger) *HTTPTokenRevoker {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	return &HTTPTokenRevoker{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config: cfg,
		logger: logger,
	}
}

// RevokeTokens posts a revocation request for every token bound to the consent
func (c *HTTPTokenRevoker) RevokeTokens(ctx context.Context, consentID, clientID, userID string) error {
	if c.config.BaseURL == "" {
		c.logger.Debug("Token revocation endpoint not configured, skipping call")
		return nil
	}

	url := c.config.BaseURL + c.config.Path

	jsonData, err := json.Marshal(RevocationRequest{
		ConsentID: consentID,
		ClientID:  clientID,
		UserID:    userID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal revocation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logrus.Fields{
		"url":       url,
		"consentID": consentID,
		"clientID":  clientID,
	}).Debug("Calling token revocation endpoint")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.WithError(err).WithField("duration", duration).Error("Token revocation call failed")
		return fmt.Errorf("token revocation call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"statusCode": resp.StatusCode,
			"response":   string(body),
		}).Warn("Token revocation endpoint returned non-success status")
		return fmt.Errorf("token revocation returned status %d", resp.StatusCode)
	}

	c.logger.WithFields(logrus.Fields{
		"consentID": consentID,
		"duration":  duration,
	}).Debug("Tokens revoked")
	return nil
}

// NoopTokenRevoker skips token revocation entirely. Used when revocation is
// disabled in configuration.
type NoopTokenRevoker struct{}

// NewNoopTokenRevoker creates a revoker that does nothing
func NewNoopTokenRevoker() *NoopTokenRevoker {
	return &NoopTokenRevoker{}
}

// RevokeTokens is a no-op
func (c *NoopTokenRevoker) RevokeTokens(ctx context.Context, consentID, clientID, userID string) error {
	return nil
}
