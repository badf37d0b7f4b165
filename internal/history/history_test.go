package history

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"chat-client/internal/models"
)

func serve(t *testing.T, handler fasthttp.RequestHandler) *HTTPSource {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })

	src := NewHTTPSource("http://backend.test/", "/api/get/messages/public", "secret")
	src.Client = &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return src
}

func TestHTTPSourceFetch(t *testing.T) {
	var gotPath, gotLimit, gotOffset, gotCookie string
	src := serve(t, func(ctx *fasthttp.RequestCtx) {
		gotPath = string(ctx.Path())
		gotLimit = string(ctx.QueryArgs().Peek("limit"))
		gotOffset = string(ctx.QueryArgs().Peek("offset"))
		gotCookie = string(ctx.Request.Header.Cookie("user_token"))
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"success":true,"data":{"rows":[{"id":"m1","userId":"u1","userName":"alice","message":"hi","createdAt":"2024-05-01T10:00:00Z","reactions":[{"emoji":"👍","userId":"u2","userName":"bob"}]}],"hasMore":true,"nextOffset":1}}`)
	})

	page, err := src.Fetch(context.Background(), 100, 0)
	require.NoError(t, err)

	assert.Equal(t, "/api/get/messages/public", gotPath)
	assert.Equal(t, "100", gotLimit)
	assert.Equal(t, "0", gotOffset)
	assert.Equal(t, "secret", gotCookie)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "m1", page.Rows[0].ID)
	assert.Equal(t, []models.Reaction{{Emoji: "👍", UserID: "u2", UserName: "bob"}}, page.Rows[0].Reactions)
	assert.True(t, page.HasMore)
	assert.Equal(t, 1, page.NextOffset)
}

func TestHTTPSourceBarePage(t *testing.T) {
	src := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"rows":[{"id":"m1"}],"hasMore":false,"nextOffset":0}`)
	})

	page, err := src.Fetch(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.False(t, page.HasMore)
}

func TestHTTPSourceErrors(t *testing.T) {
	src := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	})
	_, err := src.Fetch(context.Background(), 10, 0)
	require.Error(t, err)
	assert.Equal(t, ErrUnexpectedStatus, errors.Cause(err))

	rejected := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"success":false,"message":"no token"}`)
	})
	_, err = rejected.Fetch(context.Background(), 10, 0)
	assert.ErrorContains(t, err, "no token")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx, 10, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

type pagedSource struct {
	pages   []Page
	offsets []int
}

func (p *pagedSource) Fetch(_ context.Context, limit, offset int) (Page, error) {
	p.offsets = append(p.offsets, offset)
	i := offset / limit
	if i >= len(p.pages) {
		return Page{}, nil
	}
	return p.pages[i], nil
}

func at(id string, sec int) models.Message {
	return models.Message{ID: id, CreatedAt: time.Unix(int64(sec), 0)}
}

func TestLoadRecentSorts(t *testing.T) {
	src := &pagedSource{pages: []Page{{Rows: []models.Message{at("c", 3), at("a", 1), at("b", 2)}, HasMore: true, NextOffset: 3}}}

	rows, err := LoadRecent(context.Background(), src, 3)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, src.offsets)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "c", rows[2].ID)
}

func TestLoadPageAtOffset(t *testing.T) {
	src := &pagedSource{pages: []Page{
		{Rows: []models.Message{at("d", 4), at("c", 3)}, HasMore: true, NextOffset: 2},
		{Rows: []models.Message{at("b", 2), at("a", 1)}, HasMore: false},
	}}

	page, err := LoadPage(context.Background(), src, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{2}, src.offsets)
	assert.False(t, page.HasMore)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "a", page.Rows[0].ID)
	assert.Equal(t, "b", page.Rows[1].ID)
}

func TestLoadPageWrapsErrors(t *testing.T) {
	_, err := LoadPage(context.Background(), failingSource{}, 10, 20)
	assert.ErrorContains(t, err, "offset 20")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LoadPage(ctx, &pagedSource{}, 10, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingSource struct{}

func (failingSource) Fetch(context.Context, int, int) (Page, error) {
	return Page{}, ErrUnexpectedStatus
}
