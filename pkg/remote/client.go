// Package remote implements the read-only client for the upstream user
// catalog. The catalog is authoritative but cannot be written through this
// service; every method here is side-effect free.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/errors"
	"github.com/overlaykit/userdir/pkg/interfaces"
	"github.com/overlaykit/userdir/pkg/types"
)

// Client implements the catalog port against a JSONPlaceholder-compatible
// HTTP API serving GET /users and GET /users/{id}.
type Client struct {
	client *resty.Client
	cfg    config.RemoteConfig
	logger interfaces.Logger
}

var _ interfaces.Catalog = (*Client)(nil)

// NewClient creates a new catalog client
func NewClient(cfg config.RemoteConfig, log interfaces.Logger) *Client {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)

	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "userdir/1.0")

	return &Client{
		client: client,
		cfg:    cfg,
		logger: log,
	}
}

// FetchAll retrieves the full catalog listing
func (c *Client) FetchAll(ctx context.Context) ([]types.User, error) {
	var users []types.User

	err := c.withRetry(ctx, "fetch_all", func() error {
		resp, reqErr := c.client.R().
			SetContext(ctx).
			Get("/users")

		if reqErr != nil {
			return errors.NewSourceUnavailableError("catalog listing request failed", reqErr)
		}

		if resp.StatusCode() != http.StatusOK {
			return c.statusError(resp.StatusCode())
		}

		var fetched []types.User
		if jsonErr := json.Unmarshal(resp.Body(), &fetched); jsonErr != nil {
			return backoff.Permanent(errors.NewSourceMalformedError("cannot decode catalog listing", jsonErr))
		}

		users = fetched
		return nil
	})
	if err != nil {
		return nil, asCatalogError(err)
	}

	return users, nil
}

// FetchByID retrieves a single record by id. A 404 from the catalog is a
// terminal not-found, never retried.
func (c *Client) FetchByID(ctx context.Context, id uint64) (types.User, error) {
	var user types.User

	err := c.withRetry(ctx, "fetch_by_id", func() error {
		resp, reqErr := c.client.R().
			SetContext(ctx).
			Get(fmt.Sprintf("/users/%d", id))

		if reqErr != nil {
			return errors.NewSourceUnavailableError("catalog lookup request failed", reqErr)
		}

		if resp.StatusCode() == http.StatusNotFound {
			return backoff.Permanent(errors.NewUserNotFoundError(id))
		}
		if resp.StatusCode() != http.StatusOK {
			return c.statusError(resp.StatusCode())
		}

		var fetched types.User
		if jsonErr := json.Unmarshal(resp.Body(), &fetched); jsonErr != nil {
			return backoff.Permanent(errors.NewSourceMalformedError("cannot decode catalog record", jsonErr))
		}
		if fetched.ID == 0 {
			return backoff.Permanent(errors.NewSourceMalformedError("catalog record carries no id", nil))
		}

		user = fetched
		return nil
	})
	if err != nil {
		return types.User{}, asCatalogError(err)
	}

	return user, nil
}

// statusError maps a non-200 catalog answer. 5xx answers are transient and
// retried; everything else is terminal.
func (c *Client) statusError(status int) error {
	err := errors.NewSourceUnavailableError(
		fmt.Sprintf("catalog answered HTTP %d", status), nil).WithDetail("status", status)
	if status >= http.StatusInternalServerError {
		return err
	}
	return backoff.Permanent(err)
}

// withRetry runs the operation under the configured bounded retry policy.
// Only transient failures reach another attempt; permanent errors and
// context cancellation stop the loop immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBackoff
	bo.MaxInterval = c.cfg.RetryMaxWait
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.RetryAttempts)), ctx)

	return backoff.RetryNotify(fn, policy, func(err error, wait time.Duration) {
		c.logger.Warn("catalog request retried", map[string]interface{}{
			"operation": op,
			"wait":      wait.String(),
			"error":     err.Error(),
		})
	})
}

// asCatalogError normalizes retry-loop outcomes: anything that is not
// already part of the error taxonomy (context timeouts, cancellation)
// surfaces as source-unavailable.
func asCatalogError(err error) error {
	if errors.IsRegistryError(err) {
		return err
	}
	return errors.NewSourceUnavailableError("catalog request aborted", err)
}
