// Package identity holds the local user a session connects as.
package identity

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"chat-client/internal/models"
)

// CookieName is the backend session cookie.
const CookieName = "user_token"

var (
	ErrUnauthorized = errors.New("user not authorized")
	ErrNoToken      = errors.New("no session token")
)

// Store is the settable current identity. Connections read it at connect
// time, so it may be filled in after the sessions are created.
type Store struct {
	mu  sync.RWMutex
	id  models.Identity
	set bool
}

func NewStore() *Store { return &Store{} }

// Set replaces the identity. Invalid identities are ignored.
func (s *Store) Set(id models.Identity) bool {
	if !id.Valid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.set = true
	return true
}

// Reset forgets the identity.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = models.Identity{}
	s.set = false
}

func (s *Store) Current() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.set
}

// Resolver asks the backend who the session token belongs to.
type Resolver struct {
	Client  *fasthttp.Client
	BaseURL string
	Path    string
	Timeout time.Duration
}

func NewResolver(baseURL, path string) *Resolver {
	return &Resolver{
		Client:  &fasthttp.Client{Name: "chat-client"},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Path:    path,
		Timeout: 10 * time.Second,
	}
}

type checkResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	User    models.Identity `json:"user"`
}

// Resolve returns the identity for token.
func (r *Resolver) Resolve(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, ErrNoToken
	}
	if err := ctx.Err(); err != nil {
		return models.Identity{}, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.BaseURL + r.Path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetCookie(CookieName, token)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = r.Client.DoDeadline(req, resp, deadline)
	} else {
		err = r.Client.DoTimeout(req, resp, r.Timeout)
	}
	if err != nil {
		return models.Identity{}, errors.Wrap(err, "identity request")
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusUnauthorized || code == fasthttp.StatusForbidden:
		return models.Identity{}, ErrUnauthorized
	case code < 200 || code > 299:
		return models.Identity{}, errors.Errorf("identity request: status %d", code)
	}

	var body checkResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return models.Identity{}, errors.Wrap(err, "decode identity response")
	}
	if !body.Success || !body.User.Valid() {
		return models.Identity{}, ErrUnauthorized
	}
	return body.User, nil
}
