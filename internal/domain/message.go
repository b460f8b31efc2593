package domain

// MessageType identifies an outbound push payload. Messages are flat JSON
// objects with a "type" field; clients consume them through a generic
// message listener, so there is no transport-level event name.
type MessageType string

const (
	TypeConnection         MessageType = "connection"
	TypeInit               MessageType = "init"
	TypeStatusUpdate       MessageType = "statusUpdate"
	TypeLog                MessageType = "log"
	TypeAnalysisUpdate     MessageType = "analysisUpdate"
	TypeAnalysisMoved      MessageType = "analysisMovedToTeam"
	TypeTeamUpdate         MessageType = "teamUpdate"
	TypeAnalysisLogStats   MessageType = "analysisLogStats"
	TypeAnalysisDNSStats   MessageType = "analysisDnsStats"
	TypeAnalysisProcMetric MessageType = "analysisProcessMetrics"
	TypeMetricsUpdate      MessageType = "metricsUpdate"
	TypeHeartbeat          MessageType = "heartbeat"
	TypeRefresh            MessageType = "refresh"
	TypeForceLogout        MessageType = "forceLogout"
)

// Message is one outbound push payload. The map marshals to the flat
// `{"type": ..., ...}` shape clients expect.
type Message map[string]any

// NewMessage creates a message of the given type.
func NewMessage(t MessageType) Message {
	return Message{"type": string(t)}
}

// With adds a field to the message and returns it for chaining.
func (m Message) With(key string, value any) Message {
	m[key] = value
	return m
}

// Type returns the message type, or "" for a malformed message.
func (m Message) Type() MessageType {
	t, _ := m["type"].(string)
	return MessageType(t)
}
