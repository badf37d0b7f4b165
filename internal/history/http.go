package history

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// ErrUnexpectedStatus is returned for non-2xx history responses.
var ErrUnexpectedStatus = errors.New("unexpected history response status")

const defaultTimeout = 10 * time.Second

// HTTPSource reads history from the backend over HTTP, forwarding the session
// token as the "user_token" cookie.
type HTTPSource struct {
	Client  *fasthttp.Client
	BaseURL string
	Path    string
	Token   string
	Timeout time.Duration
}

// NewHTTPSource returns a source for baseURL+path.
func NewHTTPSource(baseURL, path, token string) *HTTPSource {
	return &HTTPSource{
		Client:  &fasthttp.Client{Name: "chat-client"},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Path:    path,
		Token:   token,
		Timeout: defaultTimeout,
	}
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *HTTPSource) Fetch(ctx context.Context, limit, offset int) (Page, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("limit", strconv.Itoa(limit))
	args.Set("offset", strconv.Itoa(offset))

	req.SetRequestURI(s.BaseURL + s.Path + "?" + args.String())
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if s.Token != "" {
		req.Header.SetCookie("user_token", s.Token)
	}

	if err := do(ctx, s.Client, req, resp, s.Timeout); err != nil {
		return Page{}, errors.Wrap(err, "history request")
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return Page{}, errors.Wrapf(ErrUnexpectedStatus, "status %d", code)
	}
	return decodePage(resp.Body())
}

// decodePage accepts both a bare page and one wrapped in {"data": ...}.
func decodePage(body []byte) (Page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Page{}, errors.Wrap(err, "decode history response")
	}
	if env.Success != nil && !*env.Success {
		return Page{}, errors.Errorf("history request rejected: %s", env.Message)
	}
	raw := body
	if len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return Page{}, errors.Wrap(err, "decode history page")
	}
	return page, nil
}

func do(ctx context.Context, c *fasthttp.Client, req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil {
		c = &fasthttp.Client{}
	}
	if deadline, ok := ctx.Deadline(); ok {
		return c.DoDeadline(req, resp, deadline)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return c.DoTimeout(req, resp, timeout)
}
