package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/imsim/internal/domain"
)

const (
	DefaultService        = "chat"
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20
)

// Client resolves gateway endpoints through GET {BaseURL}/discover/{service}.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		GatewayURL      string `json:"gatewayUrl"`
		GatewayURLSnake string `json:"gateway_url"`
	} `json:"data"`
}

func (c Client) Discover(ctx context.Context, service string) (string, error) {
	if service == "" {
		service = DefaultService
	}

	endpoint, err := buildDiscoverURL(c.BaseURL, service)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w: %w", service, domain.ErrDiscovery, err)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create discovery request: %w: %w", domain.ErrDiscovery, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("request discovery: %w: %w", domain.ErrDiscovery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("request discovery: %w: status %d", domain.ErrDiscovery, resp.StatusCode)
	}

	var payload envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode discovery response: %w: %w", domain.ErrDiscovery, err)
	}
	if payload.Code != 0 {
		return "", fmt.Errorf("discover %s: %w: code %d %s", service, domain.ErrDiscovery, payload.Code, payload.Msg)
	}

	gateway := payload.Data.GatewayURL
	if gateway == "" {
		gateway = payload.Data.GatewayURLSnake
	}
	if gateway == "" {
		return "", fmt.Errorf("discover %s: %w: response missing gateway url", service, domain.ErrDiscovery)
	}
	return gateway, nil
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func buildDiscoverURL(baseURL string, service string) (string, error) {
	if baseURL == "" {
		return "", errors.New("discovery base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse discovery base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("discovery base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("discovery base url host is required")
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/discover/" + service
	parsed.RawPath = ""
	return parsed.String(), nil
}
