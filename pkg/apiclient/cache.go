package apiclient

import (
	"net/url"

	"github.com/marmos91/dittoserve/pkg/api"
	"github.com/marmos91/dittoserve/pkg/bufcache"
)

// CacheStats returns a snapshot of the server's file cache.
func (c *Client) CacheStats() (*bufcache.Stats, error) {
	var st bufcache.Stats
	if err := c.get("/api/v1/cache", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// PurgeCache drops every cache entry and returns how many were removed.
func (c *Client) PurgeCache() (int, error) {
	var res api.PurgeResult
	if err := c.delete("/api/v1/cache", &res); err != nil {
		return 0, err
	}
	return res.Removed, nil
}

// EvictEntry drops the entry serving requestPath. With recursive set,
// every entry below it is dropped as well.
func (c *Client) EvictEntry(requestPath string, recursive bool) (*api.EvictResult, error) {
	q := url.Values{}
	q.Set("path", requestPath)
	if recursive {
		q.Set("recursive", "true")
	}

	var res api.EvictResult
	if err := c.delete("/api/v1/cache/entry?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}
