package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrCircleRejected marks a request Circle refused outright. Retrying
	// it will not help.
	ErrCircleRejected = errors.New("circle rejected the request")

	ErrInvalidCircleToken = fmt.Errorf("%w: invalid API token", ErrCircleRejected)
	ErrCommunityNotFound  = fmt.Errorf("%w: community not found", ErrCircleRejected)
)

// CircleAPI is the slice of the Circle admin API the service needs.
type CircleAPI interface {
	CheckCommunity(ctx context.Context, token string, communityID int64) error
	InviteMember(ctx context.Context, token string, communityID int64, email, name string) error
}

// CircleClient talks to the Circle admin API v1.
type CircleClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewCircleClient(baseURL string, logger *slog.Logger) *CircleClient {
	return &CircleClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type circleResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// CheckCommunity confirms the token can read the community.
func (c *CircleClient) CheckCommunity(ctx context.Context, token string, communityID int64) error {
	endpoint := c.baseURL + "/api/v1/communities/" + strconv.FormatInt(communityID, 10)
	_, err := c.do(ctx, http.MethodGet, endpoint, token, nil)
	return err
}

// InviteMember adds the email to the community. Circle sends its own
// invitation mail.
func (c *CircleClient) InviteMember(ctx context.Context, token string, communityID int64, email, name string) error {
	body := map[string]any{
		"community_id":    communityID,
		"email":           email,
		"name":            name,
		"skip_invitation": false,
	}
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/community_members", token, body)
	if err != nil {
		return err
	}
	if resp.Success != nil && !*resp.Success {
		return fmt.Errorf("%w: %s", ErrCircleRejected, resp.Message)
	}
	return nil
}

func (c *CircleClient) do(ctx context.Context, method, endpoint, token string, body any) (*circleResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling circle: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("reading circle response: %w", err)
	}

	var out circleResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCircleToken
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrCommunityNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("circle returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		c.logger.Warn("circle request rejected", "status", resp.StatusCode, "message", out.Message)
		return nil, fmt.Errorf("%w: status %d: %s", ErrCircleRejected, resp.StatusCode, out.Message)
	}
	return &out, nil
}
