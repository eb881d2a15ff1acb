package ws

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client-initiated message types.
const (
	TypePing        = "ping"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Server-pushed message types.
const (
	TypePong             = "pong"
	TypeSubscribed       = "subscribed"
	TypeUnsubscribed     = "unsubscribed"
	TypeConnected        = "connected"
	TypeAuthStatusUpdate = "auth_status_update"
	TypeError            = "error"
)

// Envelope is the JSON frame exchanged over a connection.
type Envelope struct {
	Type     string      `json:"type"`
	Channels []string    `json:"channels,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// Marshal encodes an envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes a client frame.
func ParseEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// Pong builds the reply to a client ping.
func Pong() Envelope {
	return Envelope{
		Type: TypePong,
		Data: map[string]interface{}{"timestamp": time.Now().UTC().Format(time.RFC3339)},
	}
}

// Connected builds the frame pushed when a connection opens.
func Connected(connectionID, userID, tenantID string) Envelope {
	return Envelope{
		Type: TypeConnected,
		Data: map[string]interface{}{
			"connectionId": connectionID,
			"userId":       userID,
			"tenantId":     tenantID,
		},
	}
}

// Subscribed confirms a subscription change.
func Subscribed(channels []string) Envelope {
	return Envelope{
		Type: TypeSubscribed,
		Data: map[string]interface{}{"channels": channels},
	}
}

// Unsubscribed confirms an unsubscription.
func Unsubscribed(channels []string) Envelope {
	return Envelope{
		Type: TypeUnsubscribed,
		Data: map[string]interface{}{"channels": channels},
	}
}
