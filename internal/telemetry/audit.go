package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chat-client/internal/notify"
	"chat-client/internal/observability"
)

// AuditRoutingKey is where notice audit events are published.
const AuditRoutingKey = "audit.chat_client"

// AuditEmitter publishes every user-visible notice as an audit event.
type AuditEmitter struct {
	publisher   observability.Publisher
	routingKey  string
	service     string
	environment string
	logger      zerolog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	NoticeID      string       `json:"notice_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level   string `json:"level"`
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func NewAuditEmitter(publisher observability.Publisher, routingKey, service, environment string, logger zerolog.Logger) *AuditEmitter {
	if routingKey == "" {
		routingKey = AuditRoutingKey
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
		now:         time.Now,
	}
}

// Emit publishes n. userID may be nil when no identity is known yet.
func (e *AuditEmitter) Emit(ctx context.Context, n notify.Notice, userID *string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		NoticeID:      n.ID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:   string(n.Level),
			Channel: n.Channel,
			Text:    n.Text,
		},
	}

	if err := e.publisher.PublishJSON(ctx, e.routingKey, envelope, nil); err != nil {
		e.logger.Warn().Err(err).Str("notice_id", n.ID).Msg("audit publish failed")
	}
}

// Attach emits every notice raised on c until the returned func is called.
func (e *AuditEmitter) Attach(c *notify.Center, userID func() *string) func() {
	return c.Subscribe(func(n notify.Notice) {
		var id *string
		if userID != nil {
			id = userID()
		}
		e.Emit(context.Background(), n, id)
	})
}
