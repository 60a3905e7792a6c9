package screener

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

// Request is one round trip issued by the driver.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response carries the status and raw body. Non-2xx statuses are not errors
// at this level; the driver classifies them.
type Response struct {
	StatusCode int
	Body       []byte
}

// Fetcher is the authenticated channel the driver talks through.
type Fetcher interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Cookie is a session cookie supplied by the host before the run.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
}

// Client is the resty-backed Fetcher.
type Client struct {
	http *resty.Client
}

type clientOptions struct {
	timeout   time.Duration
	userAgent string
	cookies   []Cookie
}

// Option configures a Client.
type Option func(*clientOptions)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithUserAgent overrides the default browser User-Agent.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithCookies seeds the cookie jar.
func WithCookies(cookies []Cookie) Option {
	return func(o *clientOptions) {
		o.cookies = append(o.cookies, cookies...)
	}
}

// NewClient creates a client whose domain-less cookies are scoped to baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	o := clientOptions{
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(&o)
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	seedCookies(jar, base, o.cookies)

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(o.timeout)
	client.SetHeader("User-Agent", o.userAgent)
	client.SetHeader("Accept", "application/json")

	return &Client{http: client}, nil
}

func seedCookies(jar http.CookieJar, base *url.URL, cookies []Cookie) {
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		u := base
		cookie := &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"}
		if c.Domain != "" {
			cookie.Domain = c.Domain
			u = &url.URL{Scheme: base.Scheme, Host: strings.TrimPrefix(c.Domain, "."), Path: "/"}
		}
		jar.SetCookies(u, []*http.Cookie{cookie})
	}
}

// Do executes the request. The returned error is only set for transport
// failures.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	r := c.http.R().SetContext(ctx)
	for key, values := range req.Header {
		for _, v := range values {
			r.Header.Add(key, v)
		}
	}
	if req.Body != nil {
		if r.Header.Get("Content-Type") == "" {
			r.SetHeader("Content-Type", "application/json")
		}
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	return Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}
