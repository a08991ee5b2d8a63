package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"stemfetch/internal/core/domain"
	"stemfetch/pkg/retry"

	"go.uber.org/zap"
)

// Client fetches recording metadata over HTTP. This is the one-time call
// that enumerates the users of a recording; unlike track streams it is
// safe to retry, so transient failures are.
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
	logger  *zap.SugaredLogger
}

func NewClient(baseURL string, retryCfg retry.Config, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	retryCfg.ShouldRetry = isRetryable
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   retryCfg,
		logger:  logger,
	}
}

type usersResponse struct {
	Users []domain.RemoteUser `json:"users"`
}

// statusError carries the HTTP status of a failed metadata request so the
// retry policy can distinguish server hiccups from rejections.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("metadata service returned %d", e.status)
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return true // network-level errors are worth another attempt
}

// RecordingUsers returns the participants of a recording in enumeration
// order.
func (c *Client) RecordingUsers(ctx context.Context, rec domain.Recording) ([]domain.RemoteUser, error) {
	endpoint := fmt.Sprintf("%s/recording/%s/users?key=%s",
		c.baseURL,
		url.PathEscape(string(rec.ID)),
		url.QueryEscape(rec.Key),
	)

	users, err := retry.DoWithResult(ctx, c.retry, func() ([]domain.RemoteUser, error) {
		return c.fetchUsers(ctx, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch recording users: %w", err)
	}

	c.logger.Infow("recording users fetched", "recording", rec.ID, "users", len(users))
	return users, nil
}

func (c *Client) fetchUsers(ctx context.Context, endpoint string) ([]domain.RemoteUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode}
	}

	var body usersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode users response: %w", err)
	}
	return body.Users, nil
}
