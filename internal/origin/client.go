package origin

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/52poke/kura/internal/cache"
)

// forwardHeaders are copied from the intercepted request. Accept-Encoding is
// left to the transport so stored bodies are always decoded.
var forwardHeaders = []string{"Accept", "Accept-Language", "User-Agent"}

type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	return &Client{
		base: u,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *Client) Base() *url.URL {
	clone := *c.base
	return &clone
}

// Resolve turns an origin-relative reference into the absolute URL used as
// cache key. The reference path is appended to the base path, the same way
// the pass-through proxy joins them. Absolute references (e.g. font hosts)
// are kept as is.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() || u.Host != "" {
		return c.base.ResolveReference(u), nil
	}

	target := c.Base()
	refPath := u.Path
	if !strings.HasPrefix(refPath, "/") {
		refPath = "/" + refPath
	}
	target.Path = strings.TrimRight(target.Path, "/") + refPath
	target.RawPath = ""
	target.RawQuery = u.RawQuery
	target.Fragment = ""
	return target, nil
}

// SameOrigin reports whether u points at the origin host.
func (c *Client) SameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

// Fetch performs a GET and captures the full response. A transport error is
// returned as err; a non-2xx response is not an error.
func (c *Client) Fetch(ctx context.Context, target string, headers http.Header) (cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return cache.Entry{}, err
	}
	copyHeaders(req.Header, headers)

	resp, err := c.http.Do(req)
	if err != nil {
		return cache.Entry{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.Entry{}, err
	}

	header := resp.Header.Clone()
	header.Del("Connection")
	header.Del("Keep-Alive")
	header.Del("Transfer-Encoding")
	return cache.Entry{
		URL:    target,
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
	}, nil
}

func copyHeaders(dst, src http.Header) {
	for _, k := range forwardHeaders {
		for _, v := range src.Values(k) {
			dst.Add(k, v)
		}
	}
}
