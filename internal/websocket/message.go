package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	// Client to Server
	MessageTypePing MessageType = "PING"

	// Server to Client
	MessageTypeConnected      MessageType = "CONNECTED"
	MessageTypePong           MessageType = "PONG"
	MessageTypeSessionRevoked MessageType = "SESSION_REVOKED"
	MessageTypeError          MessageType = "ERROR"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = b
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

type ConnectedPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

type SessionRevokedPayload struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
