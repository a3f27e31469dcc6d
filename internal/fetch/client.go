package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	defaultTimeout = 120 * time.Second
	maxRedirects   = 10
)

// ErrTooManyRedirects is returned when a download bounces more than 10 times.
var ErrTooManyRedirects = errors.New("too many redirects")

// newClient builds the download client. Redirects are followed only to
// http and https targets.
func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			MaxIdleConns:      10,
			IdleConnTimeout:   60 * time.Second,
			ForceAttemptHTTP2: true,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
		CheckRedirect: checkRedirect,
	}
}

// withRedirectPolicy returns a copy of c that enforces checkRedirect unless
// the caller set a policy of its own.
func withRedirectPolicy(c *http.Client) *http.Client {
	if c.CheckRedirect != nil {
		return c
	}
	cp := *c
	cp.CheckRedirect = checkRedirect
	return &cp
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, len(via))
	}
	if s := req.URL.Scheme; s != "http" && s != "https" {
		return fmt.Errorf("%w: redirect to %q", ErrUnsupportedScheme, s)
	}
	if req.URL.Host == "" {
		return fmt.Errorf("redirect without host: %s", req.URL.Redacted())
	}
	return nil
}
