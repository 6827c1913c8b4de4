// Package graphqltest provides a scripted in-process GraphQL endpoint.
package graphqltest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/jpillora/backoff"

	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/session"
)

var rootFieldRe = regexp.MustCompile(`\{\s*([_A-Za-z][_0-9A-Za-z]*)`)

// Upload is a file received through a multipart request.
type Upload struct {
	Path     string
	Filename string
	Content  []byte
}

// Request is a decoded request as seen by a resolver.
type Request struct {
	Field     string
	Query     string
	Variables map[string]any
	Header    http.Header
	Uploads   []Upload
	Multipart bool
}

// Resolver returns the value of the root field, or an error which is sent in
// the "errors" array.
type Resolver func(req Request) (any, error)

// Server is a fake GraphQL endpoint dispatching on the operation's first root
// field.
type Server struct {
	*httptest.Server

	lock      sync.Mutex
	resolvers map[string]Resolver
	requests  []Request
	cookies   []*http.Cookie
}

// NewServer starts a server that is closed when the test finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{resolvers: map[string]Resolver{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// URL of the GraphQL endpoint.
func (s *Server) Endpoint() string { return s.Server.URL + "/graphql/" }

// Client returns a client for this server with fast retries. Options are
// applied after the defaults.
func (s *Server) Client(t testing.TB, options ...graphql.Option) *graphql.Client {
	t.Helper()
	sess, err := session.New(s.Endpoint())
	assert.NoError(t, err)
	options = append([]graphql.Option{graphql.WithRetries(1, backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond})}, options...)
	return graphql.New(sess, options...)
}

// Handle registers a resolver for a root field.
func (s *Server) Handle(field string, resolver Resolver) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.resolvers[field] = resolver
}

// SetCookie makes every response set the given cookie.
func (s *Server) SetCookie(cookie *http.Cookie) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cookies = append(s.cookies, cookie)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests targeted the given root field.
func (s *Server) Count(field string) int {
	n := 0
	for _, req := range s.Requests() {
		if req.Field == field {
			n++
		}
	}
	return n
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := decodeRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []map[string]any{{"message": err.Error()}}})
		return
	}
	if m := rootFieldRe.FindStringSubmatch(req.Query); m != nil {
		req.Field = m[1]
	}

	s.lock.Lock()
	s.requests = append(s.requests, req)
	resolver, ok := s.resolvers[req.Field]
	cookies := append([]*http.Cookie(nil), s.cookies...)
	s.lock.Unlock()

	for _, cookie := range cookies {
		http.SetCookie(w, cookie)
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []map[string]any{{"message": fmt.Sprintf("Cannot query field %q", req.Field)}}})
		return
	}
	result, err := resolver(req)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"data":   map[string]any{req.Field: nil},
			"errors": []map[string]any{{"message": err.Error(), "path": []string{req.Field}}},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{req.Field: result}})
}

func decodeRequest(r *http.Request) (Request, error) {
	req := Request{Header: r.Header.Clone()}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return req, fmt.Errorf("invalid content type: %w", err)
	}
	var operation struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&operation); err != nil {
			return req, fmt.Errorf("invalid JSON body: %w", err)
		}

	case "multipart/form-data":
		req.Multipart = true
		mr := multipart.NewReader(r.Body, params["boundary"])
		var mapping map[string][]string
		files := map[string]Upload{}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return req, fmt.Errorf("invalid multipart body: %w", err)
			}
			content, err := io.ReadAll(part)
			if err != nil {
				return req, fmt.Errorf("invalid multipart body: %w", err)
			}
			switch part.FormName() {
			case "operations":
				if err := json.Unmarshal(content, &operation); err != nil {
					return req, fmt.Errorf("invalid operations part: %w", err)
				}
			case "map":
				if err := json.Unmarshal(content, &mapping); err != nil {
					return req, fmt.Errorf("invalid map part: %w", err)
				}
			default:
				files[part.FormName()] = Upload{Filename: part.FileName(), Content: content}
			}
		}
		for index, paths := range mapping {
			file, ok := files[index]
			if !ok {
				return req, fmt.Errorf("missing file part %q", index)
			}
			for _, path := range paths {
				file.Path = path
				req.Uploads = append(req.Uploads, file)
			}
		}

	default:
		return req, fmt.Errorf("unsupported content type %q", mediaType)
	}
	req.Query = operation.Query
	req.Variables = operation.Variables
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil
}

// Upload returns the upload sent for a top-level variable.
func (r Request) Upload(variable string) (Upload, bool) {
	for _, u := range r.Uploads {
		if u.Path == "variables."+variable {
			return u, true
		}
	}
	return Upload{}, false
}

// StringVar returns a string variable, or "".
func (r Request) StringVar(name string) string {
	switch v := r.Variables[name].(type) {
	case string:
		return v
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%f", v), ".000000")
	default:
		return ""
	}
}

// IntVar returns a numeric variable, or def when absent.
func (r Request) IntVar(name string, def int) int {
	if v, ok := r.Variables[name].(float64); ok {
		return int(v)
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck
}
