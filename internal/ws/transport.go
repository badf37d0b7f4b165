package ws

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"chat-client/internal/models"
)

// Transport is one open socket. *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, target string) (Transport, error)
}

// IdentitySource reports the locally resolved user, if any.
type IdentitySource interface {
	Current() (models.Identity, bool)
}

// GorillaDialer dials with gorilla/websocket.
type GorillaDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// NewGorillaDialer returns a dialer with the given handshake timeout.
func NewGorillaDialer(handshakeTimeout time.Duration, header http.Header) *GorillaDialer {
	d := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	return &GorillaDialer{Dialer: &d, Header: header}
}

func (g *GorillaDialer) Dial(ctx context.Context, target string) (Transport, error) {
	d := g.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, resp, err := d.DialContext(ctx, target, g.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", target)
	}
	return conn, nil
}

// ResolveURL appends the identity query parameters to base.
func ResolveURL(base string, id models.Identity) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parse socket address")
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Errorf("socket address %q is not absolute", base)
	}
	q := u.Query()
	q.Set("userId", id.UserID)
	q.Set("userName", id.UserName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
