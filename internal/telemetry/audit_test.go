package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/mocks"
	"chat-client/internal/notify"
)

func TestAuditEmitterPublishesNotices(t *testing.T) {
	pub := new(mocks.PublisherMock)
	e := NewAuditEmitter(pub, "", "chat-client", "test", zerolog.Nop())
	e.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	var got AuditEnvelope
	pub.On("PublishJSON", mock.Anything, AuditRoutingKey, mock.AnythingOfType("telemetry.AuditEnvelope"), map[string]string(nil)).
		Run(func(args mock.Arguments) { got = args.Get(2).(AuditEnvelope) }).
		Return(nil).Once()

	center := notify.NewCenter(0, zerolog.Nop())
	user := "u1"
	detach := e.Attach(center, func() *string { return &user })
	center.Scoped("public").Notify(notify.LevelAlert, "unsupported message type x")
	detach()
	center.Notify(notify.LevelInfo, "not published")

	pub.AssertExpectations(t)
	assert.Equal(t, "audit_log", got.EventType)
	assert.Equal(t, "2024-05-01T10:00:00Z", got.OccurredAt)
	assert.Equal(t, AuditPayload{Level: "alert", Channel: "public", Text: "unsupported message type x"}, got.Payload)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "u1", *got.UserID)
	assert.NotEmpty(t, got.NoticeID)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var e *AuditEmitter
	e.Emit(context.Background(), notify.Notice{}, nil)

	NewAuditEmitter(nil, "", "chat-client", "test", zerolog.Nop()).Emit(context.Background(), notify.Notice{}, nil)
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "chat-client", "", zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
