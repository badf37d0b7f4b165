package observability

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(connID, traceID string) map[string]string {
	headers := map[string]string{}
	if connID != "" {
		headers["x-conn-id"] = connID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSRoutingKey returns the routing key for lifecycle events of a channel kind.
func WSRoutingKey(kind string) string {
	return "ws_events." + kind
}
