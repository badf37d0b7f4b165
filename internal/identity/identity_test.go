package identity

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"chat-client/internal/models"
)

func TestStore(t *testing.T) {
	s := NewStore()
	_, ok := s.Current()
	assert.False(t, ok)

	assert.False(t, s.Set(models.Identity{UserID: "u1"}))
	assert.True(t, s.Set(models.Identity{UserID: "u1", UserName: "alice"}))
	id, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "alice", id.UserName)

	s.Reset()
	_, ok = s.Current()
	assert.False(t, ok)
}

func newResolver(t *testing.T, handler fasthttp.RequestHandler) *Resolver {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })

	r := NewResolver("http://backend.test", "/auth/check-token-for-private")
	r.Client = &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return r
}

func TestResolve(t *testing.T) {
	r := newResolver(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Request.Header.Cookie(CookieName)) != "tok" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		ctx.SetBodyString(`{"success":true,"message":"ok","user":{"userId":"u1","userName":"alice","userEmail":"a@x.io","googleId":"g1","isAuthenticated":true}}`)
	})

	id, err := r.Resolve(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "u1", UserName: "alice", Email: "a@x.io", GoogleID: "g1", Authenticated: true}, id)

	_, err = r.Resolve(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestResolveRejected(t *testing.T) {
	r := newResolver(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"success":false,"message":"expired"}`)
	})

	_, err := r.Resolve(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
