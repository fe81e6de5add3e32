// Package realtime pushes committed community activity to websocket clients
// subscribed to token channels.
package realtime

import (
	"strconv"
	"strings"
	"time"
)

// Event types pushed to subscribers
const (
	EventCommentCreated    = "comment.created"
	EventCommentLiked      = "comment.liked"
	EventPredictionUpdated = "prediction.updated"
	EventTokenDiscovered   = "token.discovered"
)

// Frame types exchanged with clients
const (
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// TokensChannel carries token-level announcements such as discoveries
const TokensChannel = "tokens"

const tokenChannelPrefix = "token:"

// TokenChannel is the channel for activity on one token
func TokenChannel(tokenID uint) string {
	return tokenChannelPrefix + strconv.FormatUint(uint64(tokenID), 10)
}

// ValidChannel reports whether clients may subscribe to channel
func ValidChannel(channel string) bool {
	if channel == TokensChannel {
		return true
	}
	id, ok := strings.CutPrefix(channel, tokenChannelPrefix)
	if !ok {
		return false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	return err == nil && n > 0 && strconv.FormatUint(n, 10) == id
}

// Publisher delivers an event to a channel's subscribers. Implementations
// must not block the caller on slow subscribers.
type Publisher interface {
	Publish(channel, eventType string, data interface{})
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(string, string, interface{}) {}

// OrNop returns p, or a NopPublisher when p is nil
func OrNop(p Publisher) Publisher {
	if p == nil {
		return NopPublisher{}
	}
	return p
}

// Message is a server frame
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Request is a client frame
type Request struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}
