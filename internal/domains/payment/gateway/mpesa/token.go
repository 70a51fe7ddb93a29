package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"schoolpay-backend/internal/domains/payment/gateway"
	"schoolpay-backend/pkg/logger"
)

// TokenCache stores the short-lived OAuth token between requests so every
// push does not cost an extra round trip. The Redis client satisfies it.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a valid OAuth bearer token, from cache when possible.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cache != nil {
		token, err := c.cache.Get(ctx, tokenCacheKey)
		if err != nil {
			logger.Warn("Failed to read mpesa token cache", map[string]interface{}{"error": err.Error()})
		} else if token != "" {
			return token, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIURL+tokenEndpoint, nil)
	if err != nil {
		return "", gateway.NewUnavailableError("failed to build token request", err)
	}
	req.SetBasicAuth(c.config.ConsumerKey, c.config.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", gateway.NewUnavailableError("token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", gateway.NewUnavailableError(fmt.Sprintf("token request returned status %d", resp.StatusCode), nil)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", gateway.NewUnavailableError("failed to decode token response", err)
	}
	if body.AccessToken == "" {
		return "", gateway.NewUnavailableError("token response missing access token", nil)
	}

	if c.cache != nil {
		ttl := time.Hour
		if seconds, err := strconv.Atoi(body.ExpiresIn); err == nil && seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
		if ttl > tokenCacheMargin {
			ttl -= tokenCacheMargin
		}
		if err := c.cache.SetWithTTL(ctx, tokenCacheKey, body.AccessToken, ttl); err != nil {
			logger.Warn("Failed to cache mpesa token", map[string]interface{}{"error": err.Error()})
		}
	}
	return body.AccessToken, nil
}
