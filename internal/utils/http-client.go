package utils

import (
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
	LargeBuffers  bool // 1 MiB socket buffers for long single-stream transfers
}

// HTTPDoer is what the download engine and the catalog clients need from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// NewHTTPClient builds a client whose Timeout bounds connecting and waiting for
// response headers only. Bodies may stream (and sit paused) for as long as needed.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: cfg.KATimeout,
	}
	if cfg.LargeBuffers {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd)
			})
		}
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		IdleConnTimeout:       cfg.KATimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		TLSHandshakeTimeout:   cfg.Timeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &HTTPClient{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// StandardClient exposes the configured *http.Client for libraries that take
// one (oauth2, the AWS SDK). Those requests skip the header injection in Do.
func (c *HTTPClient) StandardClient() *http.Client {
	return c.client
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}
