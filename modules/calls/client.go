package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// zoomClient wraps the few Zoom REST API calls the module needs.
// The caller provides an http client that injects the user's access token
// (see oauth2.Config.Client).
type zoomClient struct {
	baseURL string
}

func newZoomClient() *zoomClient {
	return &zoomClient{baseURL: "https://api.zoom.us"}
}

type meeting struct {
	ID      int64  `json:"id"`
	JoinURL string `json:"join_url"`
}

// CreateMeeting creates an instant meeting owned by the authorized user and
// returns its join URL.
func (c *zoomClient) CreateMeeting(ctx context.Context, hc *http.Client) (*meeting, error) {
	userID, err := c.currentUserID(ctx, hc)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/v2/users/%s/meetings", c.baseURL, userID), strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("creating meeting: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("zoom API error: %d", resp.StatusCode)
	}

	m := &meeting{}
	if err := json.NewDecoder(resp.Body).Decode(m); err != nil {
		return nil, fmt.Errorf("decoding meeting response: %w", err)
	}
	if m.JoinURL == "" {
		return nil, fmt.Errorf("zoom returned no join url")
	}
	return m, nil
}

func (c *zoomClient) currentUserID(ctx context.Context, hc *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v2/users/me", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching current user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("zoom API error: %d", resp.StatusCode)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("decoding user response: %w", err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("zoom returned no user id")
	}
	return user.ID, nil
}
