// Package wstest provides in-memory transports for tests of code built on
// ws.Manager.
package wstest

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-client/internal/ws"
)

// Transport is an in-memory ws.Transport. Push feeds frames to the reader;
// Drop simulates the server going away.
type Transport struct {
	mu        sync.Mutex
	reads     chan []byte
	closed    chan struct{}
	once      sync.Once
	readErr   error
	writes    [][]byte
	controls  [][]byte
	deadlines []time.Time
	onWrite   func([]byte)
}

func NewTransport() *Transport {
	return &Transport{reads: make(chan []byte, 64), closed: make(chan struct{})}
}

func (t *Transport) ReadMessage() (int, []byte, error) {
	select {
	case data := <-t.reads:
		return websocket.TextMessage, data, nil
	case <-t.closed:
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.readErr != nil {
			return 0, nil, t.readErr
		}
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (t *Transport) WriteMessage(_ int, data []byte) error {
	t.mu.Lock()
	t.writes = append(t.writes, data)
	fn := t.onWrite
	t.mu.Unlock()
	if fn != nil {
		fn(data)
	}
	return nil
}

func (t *Transport) WriteControl(_ int, data []byte, _ time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controls = append(t.controls, data)
	return nil
}

func (t *Transport) SetWriteDeadline(d time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadlines = append(t.deadlines, d)
	return nil
}

func (t *Transport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// Push queues a frame for the reader.
func (t *Transport) Push(frame string) {
	t.reads <- []byte(frame)
}

// OnWrite registers fn to see every written frame, e.g. to echo it back. fn
// runs inside WriteMessage, so a blocking fn stalls the write.
func (t *Transport) OnWrite(fn func([]byte)) {
	t.mu.Lock()
	t.onWrite = fn
	t.mu.Unlock()
}

// Drop closes the transport with err as the read error.
func (t *Transport) Drop(err error) {
	t.mu.Lock()
	t.readErr = err
	t.mu.Unlock()
	t.Close()
}

func (t *Transport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.writes...)
}

// Deadlines returns the write deadlines set so far.
func (t *Transport) Deadlines() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Time(nil), t.deadlines...)
}

func (t *Transport) Controls() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.controls...)
}

// Dialer hands out Transports. When Gate is set, Dial blocks until it is
// closed or the dial is cancelled.
type Dialer struct {
	mu         sync.Mutex
	targets    []string
	transports []*Transport
	Gate       chan struct{}
	Err        error
	OnDial     func(*Transport)
}

func (d *Dialer) Dial(ctx context.Context, target string) (ws.Transport, error) {
	d.mu.Lock()
	d.targets = append(d.targets, target)
	gate, err := d.Gate, d.Err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	t := NewTransport()
	d.mu.Lock()
	d.transports = append(d.transports, t)
	onDial := d.OnDial
	d.mu.Unlock()
	if onDial != nil {
		onDial(t)
	}
	return t, nil
}

// SetErr changes the error returned by later dials.
func (d *Dialer) SetErr(err error) {
	d.mu.Lock()
	d.Err = err
	d.mu.Unlock()
}

// Dials is the number of Dial calls so far.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

// Targets returns the dialed addresses.
func (d *Dialer) Targets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.targets...)
}

// Transport returns the i-th transport handed out, or nil.
func (d *Dialer) Transport(i int) *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

// Last returns the most recent transport, or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}
