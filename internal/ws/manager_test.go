package ws_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
	"chat-client/internal/ws"
	"chat-client/internal/ws/wstest"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type staticIdentity struct {
	mu sync.Mutex
	id models.Identity
	ok bool
}

func (s *staticIdentity) Current() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.ok
}

func alice() *staticIdentity {
	return &staticIdentity{id: models.Identity{UserID: "u1", UserName: "alice"}, ok: true}
}

func newTestManager(d ws.Dialer, id ws.IdentitySource) *ws.Manager {
	return ws.NewManager("public", d, id, zerolog.Nop())
}

func waitStatus(t *testing.T, m *ws.Manager, want ws.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Status() == want }, waitFor, tick, "status %s", want)
}

func TestConnectTwiceDialsOnce(t *testing.T) {
	gate := make(chan struct{})
	d := &wstest.Dialer{Gate: gate}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("ws://chat.test/ws")
	m.Connect("ws://chat.test/ws")
	assert.Equal(t, ws.Connecting, m.Status())

	close(gate)
	waitStatus(t, m, ws.Connected)

	m.Connect("ws://chat.test/ws")
	assert.Equal(t, 1, d.Dials())
	assert.Equal(t, ws.Connected, m.Status())
}

func TestConnectAppendsIdentity(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, &staticIdentity{id: models.Identity{UserID: "u 1", UserName: "Bob & Co"}, ok: true})
	defer m.Close()

	m.Connect("ws://chat.test/ws?room=fun")
	waitStatus(t, m, ws.Connected)

	assert.Equal(t, "ws://chat.test/ws?room=fun&userId=u+1&userName=Bob+%26+Co", m.Target())
}

func TestConnectWithoutIdentityIsSoftFail(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, &staticIdentity{})
	defer m.Close()

	m.Connect("ws://chat.test/ws")

	assert.Equal(t, ws.Disconnected, m.Status())
	assert.Equal(t, 0, d.Dials())
}

func TestConnectRejectsRelativeAddress(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("/ws")

	assert.Equal(t, ws.Disconnected, m.Status())
	assert.Equal(t, 0, d.Dials())
}

func TestSendRequiresConnection(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	assert.False(t, m.Send([]byte(`{"type":"is_typing","payload":true}`)))

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)

	require.True(t, m.Send([]byte(`{"type":"is_typing","payload":true}`)))
	assert.Equal(t, [][]byte{[]byte(`{"type":"is_typing","payload":true}`)}, d.Transport(0).Writes())
}

func TestStalledWriteDoesNotBlockState(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)

	release := make(chan struct{})
	defer close(release)
	tr := d.Transport(0)
	tr.OnWrite(func([]byte) { <-release })

	sent := make(chan bool, 1)
	go func() { sent <- m.Send([]byte("stuck")) }()
	require.Eventually(t, func() bool { return len(tr.Writes()) == 1 }, waitFor, tick)

	status := make(chan ws.Status, 1)
	go func() { status <- m.Status() }()
	select {
	case got := <-status:
		assert.Equal(t, ws.Connected, got)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Status blocked behind a stalled write")
	}

	deadlines := tr.Deadlines()
	require.Len(t, deadlines, 1)
	assert.WithinDuration(t, time.Now().Add(10*time.Second), deadlines[0], 2*time.Second)
}

func TestStatusTransitions(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	var mu sync.Mutex
	var seen []ws.Status
	cancel := m.Subscribe(func(_, next ws.Status) {
		mu.Lock()
		seen = append(seen, next)
		mu.Unlock()
	})
	defer cancel()

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)
	d.Transport(0).Drop(errors.New("connection reset"))
	waitStatus(t, m, ws.Disconnected)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ws.Status{ws.Connecting, ws.Connected, ws.Disconnected}, seen)
}

func TestDialFailureReturnsToDisconnected(t *testing.T) {
	d := &wstest.Dialer{Err: errors.New("refused")}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Disconnected)

	d.SetErr(nil)
	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)
	assert.Equal(t, 2, d.Dials())
}

func TestFramesDeliveredInOrder(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)

	tr := d.Transport(0)
	tr.Push("1")
	tr.Push("2")
	tr.Push("3")

	for _, want := range []string{"1", "2", "3"} {
		select {
		case in := <-m.Frames():
			assert.Equal(t, want, string(in.Data))
			assert.Equal(t, "public", in.Kind)
			assert.NotEmpty(t, in.ConnID)
		case <-time.After(waitFor):
			t.Fatalf("frame %s not delivered", want)
		}
	}
}

func TestDisconnectClosesNormally(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)

	m.Disconnect()

	assert.Equal(t, ws.Disconnected, m.Status())
	assert.True(t, m.Exhausted())
	assert.Empty(t, m.Target())
	assert.False(t, m.Send([]byte("x")))

	controls := d.Transport(0).Controls()
	require.Len(t, controls, 1)
	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Manual disconnect"), controls[0])
}

func TestDisconnectCancelsPendingDial(t *testing.T) {
	d := &wstest.Dialer{Gate: make(chan struct{})}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("ws://chat.test/ws")
	m.Disconnect()

	assert.Equal(t, ws.Disconnected, m.Status())
	require.Eventually(t, func() bool { return d.Dials() == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ws.Disconnected, m.Status())
}

func TestReconnectUsesLastBase(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Reconnect()
	assert.Equal(t, 0, d.Dials())

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)
	d.Transport(0).Drop(errors.New("connection reset"))
	waitStatus(t, m, ws.Disconnected)

	m.Reconnect()
	waitStatus(t, m, ws.Connected)
	assert.Equal(t, 2, d.Dials())
	assert.Equal(t, "ws://chat.test/ws?userId=u1&userName=alice", m.Target())
}

func TestReconnectAfterDisconnectIsNoop(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)
	m.Disconnect()

	m.Reconnect()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, ws.Disconnected, m.Status())
	assert.True(t, m.Exhausted())
	assert.Equal(t, 1, d.Dials())
}

func TestSupersededTransportIsIgnored(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())
	defer m.Close()

	m.Connect("ws://one.test/ws")
	waitStatus(t, m, ws.Connected)
	m.Connect("ws://two.test/ws")
	require.Eventually(t, func() bool { return d.Transport(1) != nil }, waitFor, tick)
	waitStatus(t, m, ws.Connected)

	first := d.Transport(0)
	first.Drop(errors.New("late close"))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, ws.Connected, m.Status())
	assert.Equal(t, 2, d.Dials())
}

func TestCloseUsesGoingAway(t *testing.T) {
	d := &wstest.Dialer{}
	m := newTestManager(d, alice())

	m.Connect("ws://chat.test/ws")
	waitStatus(t, m, ws.Connected)
	m.Close()

	controls := d.Transport(0).Controls()
	require.Len(t, controls, 1)
	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseGoingAway, "Page unload"), controls[0])

	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}

	m.Connect("ws://chat.test/ws")
	assert.Equal(t, 1, d.Dials())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", ws.Disconnected.String())
	assert.Equal(t, "connecting", ws.Connecting.String())
	assert.Equal(t, "connected", ws.Connected.String())
}
