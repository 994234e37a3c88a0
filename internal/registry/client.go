package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ppiankov/tagwatch/internal/config"
	"github.com/ppiankov/tagwatch/internal/metrics"
	"github.com/ppiankov/tagwatch/internal/version"
)

const (
	maxResponseBytes = 16 << 20
	maxTokenBytes    = 1 << 20
)

// Client performs registry API reads, answering a bearer challenge with a
// single token fetch and retry.
type Client struct {
	HTTPClient    *http.Client
	ClientID      string
	UserAgent     string
	Keychain      Keychain
	InsecureHosts map[string]bool
	Metrics       *metrics.Counters
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for registry and token requests.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.HTTPClient = c } }

// WithClientID sets the client_id sent to token endpoints.
func WithClientID(id string) Option { return func(cl *Client) { cl.ClientID = id } }

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option { return func(cl *Client) { cl.UserAgent = ua } }

// WithKeychain sets static credentials for token endpoints.
func WithKeychain(k Keychain) Option { return func(cl *Client) { cl.Keychain = k } }

// WithInsecureHosts marks registry hosts served over plain HTTP.
func WithInsecureHosts(hosts map[string]bool) Option {
	return func(cl *Client) { cl.InsecureHosts = hosts }
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Counters) Option { return func(cl *Client) { cl.Metrics = m } }

// NewClient returns a Client with defaults applied before opts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		HTTPClient: &http.Client{Timeout: config.DefaultRegistryTimeout},
		ClientID:   config.ClientID,
		UserAgent:  version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a fully read registry response.
type Response struct {
	Host       string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: decoding body: %v", ErrMalformedResponse, err)
	}
	return nil
}

// URL returns the registry API URL for a path below /v2/ of ref's repository.
func (c *Client) URL(ref Reference, path string) string {
	scheme := "https"
	if c.InsecureHosts[ref.Host] {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/v2/%s/%s", scheme, ref.Host, ref.Repository, path)
}

// Get issues a GET with the given headers. A 401 with a bearer challenge is
// answered by fetching a token and retrying exactly once; whatever the retry
// returns is handed back to the caller.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	logger := log.FromContext(ctx)
	logger.V(1).Info("fetching", "url", url)

	resp, err := c.do(ctx, url, header, maxResponseBytes)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	ch, err := parseChallenge(resp.Header.Get("Www-Authenticate"))
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	token, err := c.fetchToken(ctx, resp.Host, ch)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	retry := header.Clone()
	if retry == nil {
		retry = http.Header{}
	}
	retry.Set("Authorization", "Bearer "+token)
	logger.V(1).Info("retrying with bearer token", "url", url)
	return c.do(ctx, url, retry, maxResponseBytes)
}

func (c *Client) do(ctx context.Context, url string, header http.Header, limit int64) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.record(0)
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.record(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return &Response{Host: req.URL.Host, StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) record(status int) {
	if c.Metrics != nil {
		c.Metrics.RecordRegistryRequest(status)
	}
}
