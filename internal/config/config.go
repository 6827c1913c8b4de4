// Package config holds the client settings shared by every command.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/text/language"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/paging"
	"github.com/block/storefront/internal/session"
)

// DefaultEndpoint is the development server's GraphQL endpoint.
const DefaultEndpoint = "http://localhost:8000/graphql/"

// Config for connecting to the storefront API.
type Config struct {
	Endpoint   *url.URL      `help:"GraphQL endpoint." default:"${endpoint}" env:"STOREFRONT_ENDPOINT"`
	CSRFCookie string        `help:"Name of the cookie carrying the CSRF token." default:"csrftoken" env:"STOREFRONT_CSRF_COOKIE"`
	Timeout    time.Duration `help:"Timeout for each request." default:"30s" env:"STOREFRONT_TIMEOUT"`
	Retries    int           `help:"How many times a failed read is retried." default:"2" env:"STOREFRONT_RETRIES"`
	RetryDelay time.Duration `help:"Initial delay between retries." default:"200ms" env:"STOREFRONT_RETRY_DELAY"`
	PageSize   int           `help:"Items per page in lists." default:"50" env:"STOREFRONT_PAGE_SIZE"`
	Debounce   time.Duration `help:"Quiet period before a search is sent." default:"500ms" env:"STOREFRONT_DEBOUNCE"`
	Locale     string        `help:"Language for user-facing messages." default:"en" env:"STOREFRONT_LOCALE"`
}

// Vars are the kong interpolation variables Config relies on.
func Vars() map[string]string {
	return map[string]string{"endpoint": DefaultEndpoint}
}

// Validate checks values kong cannot.
func (c Config) Validate() error {
	if c.Endpoint == nil || (c.Endpoint.Scheme != "http" && c.Endpoint.Scheme != "https") {
		return fmt.Errorf("endpoint must be an http or https URL")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	return nil
}

// Language is the parsed Locale.
func (c Config) Language() language.Tag { return apierror.ParseLocale(c.Locale) }

// Session creates a session for the configured endpoint.
func (c Config) Session() (*session.Session, error) {
	endpoint := DefaultEndpoint
	if c.Endpoint != nil {
		endpoint = c.Endpoint.String()
	}
	sess, err := session.New(endpoint, session.WithCSRFCookie(c.CSRFCookie))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return sess, nil
}

// Client creates a GraphQL client for sess using the configured timeout and
// retry policy.
func (c Config) Client(sess *session.Session, options ...graphql.Option) *graphql.Client {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	options = append([]graphql.Option{
		graphql.WithTimeout(c.Timeout),
		graphql.WithRetries(c.Retries, backoff.Backoff{Min: delay, Max: 10 * delay, Factor: 2, Jitter: true}),
	}, options...)
	return graphql.New(sess, options...)
}

// Feedback creates a notification channel in the configured language.
func (c Config) Feedback() *feedback.Channel { return feedback.New(c.Language()) }

// ListPageSize returns PageSize, or the default if unset.
func (c Config) ListPageSize() int {
	if c.PageSize <= 0 {
		return paging.DefaultPageSize
	}
	return c.PageSize
}
