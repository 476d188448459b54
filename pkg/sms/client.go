// Package sms delivers text messages through the HTTP SMS gateway.
package sms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nokasa/pickup-backend/pkg/config"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
)

const (
	responseReadLimit int64 = 1024
	defaultRetryBase        = 200 * time.Millisecond
)

// Gateway success codes. Anything else in the body is a delivery failure.
var acceptedCodes = []string{"1701", "1702"}

var (
	errBaseURLRequired = errors.New("sms gateway url is required")
	leadingCountryCode = regexp.MustCompile(`^\+?91`)
	whitespace         = regexp.MustCompile(`\s`)
)

// Sender is what callers depend on.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// Client calls the gateway's GET endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	cfg         config.SMSConfig
	countryCode string
	backoff     func() retry.Backoff
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg config.SMSConfig, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	country := strings.TrimSpace(cfg.CountryCode)
	if country == "" {
		country = "91"
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	maxRetries := cfg.MaxRetries
	client := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     base,
		cfg:         cfg,
		countryCode: country,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(retryBase)
			b = retry.WithJitterPercent(20, b)
			return retry.WithMaxRetries(maxRetries, b)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// FormatDestination strips any +91 prefix and whitespace, then prefixes the
// gateway country code.
func FormatDestination(countryCode, phone string) string {
	local := leadingCountryCode.ReplaceAllString(strings.TrimSpace(phone), "")
	local = whitespace.ReplaceAllString(local, "")
	return countryCode + local
}

// LoginMessage is the body sent with login codes.
func LoginMessage(code string) string {
	return fmt.Sprintf("Please use the code %s to login on NoKasa. Please do not share this code with anyone for security reason.", code)
}

// Send delivers one message. Gateway rejections come back as CodeDependency.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "sms client not configured")
	}
	if strings.TrimSpace(phone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination phone is required")
	}

	params := url.Values{}
	params.Set("username", c.cfg.Username)
	params.Set("password", c.cfg.Password)
	params.Set("type", "0")
	params.Set("dlr", "1")
	params.Set("destination", FormatDestination(c.countryCode, phone))
	params.Set("source", c.cfg.Source)
	params.Set("message", message)
	params.Set("entityid", c.cfg.EntityID)
	params.Set("tempid", c.cfg.TemplateID)
	params.Set("header", c.cfg.Header)

	endpoint := c.baseURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + params.Encode()
	} else {
		endpoint += "?" + params.Encode()
	}

	// Transport failures and 5xx replies are retried. A rejection code in a
	// 200 body is final.
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := c.call(ctx, endpoint)
		var transient transientError
		if errors.As(err, &transient) {
			return retry.RetryableError(transient.err)
		}
		return err
	})
}

type transientError struct {
	err error
}

func (e transientError) Error() string { return e.err.Error() }

func (c *Client) call(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build sms request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transientError{err: pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute sms request")}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return transientError{err: pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read sms response")}
	}
	text := strings.TrimSpace(string(body))
	rejected := pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, text), "sms gateway rejected message")
	if resp.StatusCode >= http.StatusInternalServerError {
		return transientError{err: rejected}
	}
	if resp.StatusCode != http.StatusOK || !accepted(text) {
		return rejected
	}
	return nil
}

func accepted(body string) bool {
	for _, code := range acceptedCodes {
		if strings.Contains(body, code) {
			return true
		}
	}
	return false
}
