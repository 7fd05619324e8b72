package bus

// InboundMessage is one received chat message, independent of transport.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name,omitempty"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Params     map[string]string `json:"params,omitempty"`
	SessionKey string            `json:"session_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Param returns one structured parameter value.
func (m InboundMessage) Param(key string) (string, bool) {
	if m.Params == nil {
		return "", false
	}

	value, ok := m.Params[key]
	return value, ok
}

// OutboundMessage carries the segments delivered for one inbound message.
type OutboundMessage struct {
	Channel    string            `json:"channel"`
	ChatID     string            `json:"chat_id"`
	SessionKey string            `json:"session_key,omitempty"`
	Content    string            `json:"content"`
	Segments   []string          `json:"segments,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
