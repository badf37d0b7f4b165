// Package ws manages the client side socket of one chat channel.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/observability"
)

const (
	framesBuffer = 256
	closeTimeout = time.Second
	writeWait    = 10 * time.Second

	reasonManual = "Manual disconnect"
	reasonUnload = "Page unload"
)

// Inbound is one frame read from the live transport.
type Inbound struct {
	Kind   string
	ConnID string
	Data   []byte
}

type link struct {
	t           Transport
	connID      string
	target      string
	traceID     string
	connectedAt time.Time
}

// Manager owns at most one live transport for a channel. Frames from every
// transport it opens are delivered in read order on Frames().
type Manager struct {
	kind     string
	dialer   Dialer
	identity IdentitySource
	logger   zerolog.Logger
	tracer   trace.Tracer

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	// Never acquire it while holding mu.
	writeMu sync.Mutex

	mu         sync.Mutex
	status     Status
	live       *link
	dialing    bool
	dialCancel context.CancelFunc
	family     string
	lastURL    string
	gen        uint64
	exhausted  bool
	closed     bool
	listeners  map[int]func(prev, next Status)
	nextID     int

	frames chan Inbound
	done   chan struct{}
}

// NewManager creates a disconnected manager for the channel kind.
func NewManager(kind string, dialer Dialer, identity IdentitySource, logger zerolog.Logger) *Manager {
	return &Manager{
		kind:      kind,
		dialer:    dialer,
		identity:  identity,
		logger:    logger.With().Str("channel", kind).Logger(),
		tracer:    otel.Tracer("chat-client/ws"),
		listeners: make(map[int]func(prev, next Status)),
		frames:    make(chan Inbound, framesBuffer),
		done:      make(chan struct{}),
	}
}

// Kind returns the channel kind.
func (m *Manager) Kind() string { return m.kind }

// Frames returns the channel of inbound frames. It is never closed; select on
// Done to stop consuming.
func (m *Manager) Frames() <-chan Inbound { return m.frames }

// Done is closed by Close.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connected reports whether the live transport is open.
func (m *Manager) Connected() bool { return m.Status() == Connected }

// Exhausted reports whether the last transition came from Disconnect.
func (m *Manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// Target returns the last resolved socket address, empty after Disconnect.
func (m *Manager) Target() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastURL
}

// Subscribe registers fn for status transitions. fn runs synchronously on the
// goroutine that caused the transition and must not block.
func (m *Manager) Subscribe(fn func(prev, next Status)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Connect opens a transport to base with the current identity appended.
// Missing identity, an open transport to the same address or a pending dial
// make it a no-op.
func (m *Manager) Connect(base string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	id, ok := m.identity.Current()
	if !ok || !id.Valid() {
		m.mu.Unlock()
		m.logger.Warn().Msg("no local identity yet, skipping connect")
		return
	}

	target, err := ResolveURL(base, id)
	if err != nil {
		m.mu.Unlock()
		m.logger.Error().Err(err).Str("base", base).Msg("invalid socket address")
		return
	}

	if m.live != nil && m.lastURL == target && m.status == Connected {
		m.mu.Unlock()
		return
	}
	if m.dialing {
		m.mu.Unlock()
		m.logger.Debug().Msg("connection attempt already in flight")
		return
	}

	stale := m.live
	m.live = nil
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.dialing = true
	m.dialCancel = cancel
	m.family = base
	m.lastURL = target
	m.exhausted = false
	notify := m.transitionLocked(Connecting)
	m.mu.Unlock()

	if stale != nil {
		m.closeTransport(stale, websocket.CloseNormalClosure, "Superseded")
	}
	notify()

	go m.dial(ctx, gen, target)
}

func (m *Manager) dial(ctx context.Context, gen uint64, target string) {
	ctx, span := m.tracer.Start(ctx, "ws.dial", trace.WithAttributes(
		attribute.String("ws.kind", m.kind),
	))
	t, err := m.dialer.Dial(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	traceID := span.SpanContext().TraceID().String()
	span.End()

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return
	}
	m.dialing = false
	m.dialCancel = nil

	if err != nil {
		notify := m.transitionLocked(Disconnected)
		m.mu.Unlock()
		m.logger.Error().Err(err).Msg("websocket dial failed")
		notify()
		m.publishLifecycle(context.Background(), "ws_error", "", traceID, target, err.Error(), time.Time{})
		return
	}

	l := &link{
		t:           t,
		connID:      uuid.NewString(),
		target:      target,
		traceID:     traceID,
		connectedAt: time.Now(),
	}
	m.live = l
	notify := m.transitionLocked(Connected)
	m.mu.Unlock()

	m.logger.Info().Str("conn_id", l.connID).Msg("websocket connected")
	notify()
	m.publishLifecycle(context.Background(), "ws_connect", l.connID, traceID, target, "", time.Time{})

	go m.readLoop(l)
}

func (m *Manager) readLoop(l *link) {
	for {
		_, data, err := l.t.ReadMessage()
		if err != nil {
			m.handleClosed(l, err)
			return
		}
		if !m.isLive(l) {
			continue
		}
		select {
		case m.frames <- Inbound{Kind: m.kind, ConnID: l.connID, Data: data}:
		case <-m.done:
			return
		}
	}
}

func (m *Manager) isLive(l *link) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live == l
}

func (m *Manager) handleClosed(l *link, err error) {
	m.mu.Lock()
	if m.live != l {
		m.mu.Unlock()
		return
	}
	m.live = nil
	notify := m.transitionLocked(Disconnected)
	m.mu.Unlock()

	_ = l.t.Close()
	notify()

	reason := err.Error()
	if abnormal(err) {
		m.logger.Warn().Err(err).Str("conn_id", l.connID).Msg("websocket closed unexpectedly")
		m.publishLifecycle(context.Background(), "ws_error", l.connID, l.traceID, l.target, reason, l.connectedAt)
	} else {
		m.logger.Info().Str("conn_id", l.connID).Msg("websocket closed")
	}
	m.publishLifecycle(context.Background(), "ws_disconnect", l.connID, l.traceID, l.target, reason, l.connectedAt)
}

// Send writes a text frame. It fails without writing unless connected. A
// write that stalls for writeWait fails with a timeout.
func (m *Manager) Send(frame []byte) bool {
	m.mu.Lock()
	l := m.live
	ok := m.status == Connected && l != nil
	m.mu.Unlock()
	if !ok {
		observability.IncSendFailure(m.kind, "not_connected")
		return false
	}

	m.writeMu.Lock()
	if !m.isLive(l) {
		m.writeMu.Unlock()
		observability.IncSendFailure(m.kind, "not_connected")
		return false
	}
	_ = l.t.SetWriteDeadline(time.Now().Add(writeWait))
	err := l.t.WriteMessage(websocket.TextMessage, frame)
	m.writeMu.Unlock()

	if err != nil {
		observability.IncSendFailure(m.kind, "write_error")
		m.logger.Error().Err(err).Str("conn_id", l.connID).Msg("websocket write failed")
		return false
	}
	observability.IncFrameSent(m.kind)
	return true
}

// Disconnect closes the live transport with a normal closure, cancels a
// pending dial and forgets the address, so a later Reconnect does nothing.
func (m *Manager) Disconnect() {
	m.shutdown(websocket.CloseNormalClosure, reasonManual)
}

// Reconnect connects again to the last base address. It is a no-op if there
// is none, i.e. before Connect or after Disconnect.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	base := m.family
	m.mu.Unlock()
	if base == "" {
		m.logger.Debug().Msg("reconnect without a known address")
		return
	}
	m.Connect(base)
}

// Close tears the manager down with a going-away closure. Further calls to
// Connect are ignored.
func (m *Manager) Close() {
	m.shutdown(websocket.CloseGoingAway, reasonUnload)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *Manager) shutdown(code int, reason string) {
	m.mu.Lock()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.dialing = false
	m.gen++
	l := m.live
	m.live = nil
	m.family = ""
	m.lastURL = ""
	m.exhausted = true
	notify := m.transitionLocked(Disconnected)
	m.mu.Unlock()

	if l != nil {
		m.closeTransport(l, code, reason)
	}
	notify()
	if l != nil {
		m.logger.Info().Str("conn_id", l.connID).Str("reason", reason).Msg("websocket disconnected")
		m.publishLifecycle(context.Background(), "ws_disconnect", l.connID, l.traceID, l.target, reason, l.connectedAt)
	}
}

func (m *Manager) closeTransport(l *link, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := l.t.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout)); err != nil {
		m.logger.Debug().Err(err).Msg("write close frame")
	}
	_ = l.t.Close()
}

// transitionLocked sets the status and returns a func that notifies the
// listeners. Call it with mu held and run the result after unlocking.
func (m *Manager) transitionLocked(next Status) func() {
	prev := m.status
	if prev == next {
		return func() {}
	}
	m.status = next
	observability.SetWSStatus(m.kind, int(next))

	fns := make([]func(prev, next Status), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(prev, next)
		}
	}
}
