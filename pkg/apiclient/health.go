package apiclient

import (
	"encoding/json"

	"github.com/marmos91/dittoserve/pkg/api"
)

// Health is the decoded health response.
type Health struct {
	api.Response
	Info api.HealthInfo `json:"-"`
}

// Health queries the liveness endpoint.
func (c *Client) Health() (*Health, error) {
	return c.health("/health")
}

// Ready queries the readiness endpoint. A server that is not ready yet
// answers with a 503 APIError.
func (c *Client) Ready() (*Health, error) {
	return c.health("/health/ready")
}

func (c *Client) health(path string) (*Health, error) {
	var raw struct {
		api.Response
		Data json.RawMessage `json:"data,omitempty"`
	}
	if err := c.get(path, &raw); err != nil {
		return nil, err
	}

	h := &Health{Response: raw.Response}
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, &h.Info); err != nil {
			return nil, err
		}
	}
	h.Data = nil
	return h, nil
}
