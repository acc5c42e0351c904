package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/relay/packages/failure"
	"github.com/abdul-hamid-achik/relay/packages/request"
)

const (
	// DefaultTimeout bounds a dispatch whose context carries no deadline
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

// Client performs one HTTP exchange per Execute call.
type Client struct {
	httpClient     *http.Client
	timeout        time.Duration
	followRedirect bool
	maxRedirects   int
	validateSSL    bool
	proxyURL       string
	baseDir        string
	defaultHeaders map[string]string
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		followRedirect: true,
		maxRedirects:   DefaultMaxRedirects,
		validateSSL:    true,
		defaultHeaders: make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}

	// Configure TLS verification
	if !c.validateSSL {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	// Configure proxy if specified
	if c.proxyURL != "" {
		proxyURL, err := neturl.Parse(c.proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !c.followRedirect {
			return http.ErrUseLastResponse
		}
		if len(via) >= c.maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	// No client-wide Timeout: every Execute call carries its own deadline.
	c.httpClient = &http.Client{
		Transport:     transport,
		CheckRedirect: redirectPolicy,
	}

	return c
}

// WithTimeout sets the bound applied when the caller's context has no deadline.
// Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) {
		c.followRedirect = follow
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		c.maxRedirects = max
	}
}

func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

// WithDefaultHeaders sets multiple default headers for all requests
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.validateSSL = validate
	}
}

// WithProxy sets the proxy URL for all requests
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

// WithBaseDir resolves relative body file paths against dir and refuses
// paths that escape it.
func WithBaseDir(dir string) ClientOption {
	return func(c *Client) {
		c.baseDir = dir
	}
}

// Timeout returns the default dispatch bound.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Execute sends req and reads the whole response. Body files are opened
// here, so a missing file fails with *failure.BodyReadError before any
// network traffic. A deadline hit yields an error matching failure.ErrTimeout.
func (c *Client) Execute(ctx context.Context, req *request.Model) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, &failure.ValidationError{Field: "request", Message: err.Error()}
	}
	if err := ValidateURL(req.Target()); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := buildBody(req, c.baseDir)
	if err != nil {
		return nil, err
	}
	if body.reader != nil && body.length == 0 {
		// A non-nil zero-length body would go out chunked
		body.close()
		body.reader = http.NoBody
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method()), req.Target(), body.reader)
	if err != nil {
		body.close()
		return nil, &failure.ValidationError{Field: "request", Message: err.Error()}
	}
	if body.reader != nil {
		httpReq.ContentLength = body.length
	}

	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}

	// Model headers replace a default with the same key; repeated keys are
	// all sent, in order.
	headers := req.Headers()
	for _, h := range headers {
		httpReq.Header.Del(h.Key)
	}
	for _, h := range headers {
		httpReq.Header.Add(h.Key, h.Value)
	}

	// The multipart boundary must win over any header the user typed
	if req.ContentType() == request.Multipart || httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", body.contentType)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, transportError(ctx, err)
		}
		return nil, &failure.MalformedResponseError{Err: err}
	}

	respHeaders := make(map[string]string)
	for k, values := range httpResp.Header {
		respHeaders[k] = strings.Join(values, ", ")
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    respHeaders,
		Body:       respBody,
		Size:       int64(len(respBody)),
		Duration:   time.Since(start),
		TTFB:       duration,
	}, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", failure.ErrTimeout, err)
	}
	return err
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return &failure.ValidationError{Field: "url", Message: fmt.Sprintf("invalid URL: %v", err)}
	}

	// Check for valid scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return &failure.ValidationError{Field: "url", Message: fmt.Sprintf("unsupported URL scheme: %s (only http and https are allowed)", u.Scheme)}
	}

	// Check for valid host
	if u.Host == "" {
		return &failure.ValidationError{Field: "url", Message: "URL must have a host"}
	}

	return nil
}
