// Package session holds the explicit per-user context the transport sends
// with every request: endpoint, cookies and CSRF cookie name.
package session

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// DefaultCSRFCookie is the cookie the server stores its CSRF token in.
const DefaultCSRFCookie = "csrftoken"

// Session is passed to the transport at construction time. Nothing in the
// client reads session state ambiently.
type Session struct {
	endpoint   *url.URL
	jar        http.CookieJar
	csrfCookie string
}

// Option configures a Session.
type Option func(*Session)

// WithCookieJar replaces the session's in-memory cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(s *Session) { s.jar = jar }
}

// WithCSRFCookie overrides the name of the CSRF cookie.
func WithCSRFCookie(name string) Option {
	return func(s *Session) {
		if name != "" {
			s.csrfCookie = name
		}
	}
}

// New creates a session for the given GraphQL endpoint.
func New(endpoint string, options ...Option) (*Session, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	s := &Session{endpoint: u, csrfCookie: DefaultCSRFCookie}
	for _, option := range options {
		option(s)
	}
	if s.jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		s.jar = jar
	}
	return s, nil
}

// Endpoint returns the GraphQL endpoint URL.
func (s *Session) Endpoint() *url.URL {
	u := *s.endpoint
	return &u
}

// Jar returns the cookie jar requests are sent with.
func (s *Session) Jar() http.CookieJar { return s.jar }

// CSRFCookie returns the name of the CSRF cookie.
func (s *Session) CSRFCookie() string { return s.csrfCookie }

// CSRFToken returns the URL-decoded CSRF token for the endpoint, if the
// server has set one.
func (s *Session) CSRFToken() (string, bool) {
	for _, cookie := range s.jar.Cookies(s.endpoint) {
		if cookie.Name != s.csrfCookie {
			continue
		}
		value, err := url.PathUnescape(cookie.Value)
		if err != nil {
			return cookie.Value, cookie.Value != ""
		}
		return value, value != ""
	}
	return "", false
}

// SetCookie stores a cookie for the endpoint, eg. one restored by the host
// application.
func (s *Session) SetCookie(cookie *http.Cookie) {
	s.jar.SetCookies(s.endpoint, []*http.Cookie{cookie})
}
