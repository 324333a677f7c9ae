package upload

import (
	"context"
	"net/http"
	"time"
)

const probeTimeout = 2 * time.Second

// IsReachable reports whether anything answers HTTP at the base URL. Any
// status counts; the service has no dedicated health route.
func (c *Client) IsReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
