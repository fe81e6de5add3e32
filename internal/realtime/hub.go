package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/metrics"
)

// ConnectionStats is a snapshot of hub activity
type ConnectionStats struct {
	ActiveConnections  int64     `json:"activeConnections"`
	TotalConnections   int64     `json:"totalConnections"`
	TotalSubscriptions int64     `json:"totalSubscriptions"`
	MessagesSent       int64     `json:"messagesSent"`
	MessagesDropped    int64     `json:"messagesDropped"`
	LastUpdate         time.Time `json:"lastUpdate"`
}

type subscription struct {
	client  *Client
	channel string
}

type request struct {
	client *Client
	req    Request
}

type broadcast struct {
	channel string
	data    []byte
}

// Hub owns every client's Send channel. Only the Run goroutine writes to or
// closes a Send channel.
type Hub struct {
	clients       map[*Client]bool
	subscriptions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	requests   chan request
	broadcasts chan broadcast

	stats ConnectionStats
	mu    sync.RWMutex

	log      logrus.FieldLogger
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewHub creates a new websocket hub
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		requests:      make(chan request, 64),
		broadcasts:    make(chan broadcast, 256),
		log:           log,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		stats:         ConnectionStats{LastUpdate: time.Now()},
	}
}

// Run processes hub traffic until Stop is called
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case r := <-h.requests:
			h.handleRequest(r)
		case b := <-h.broadcasts:
			h.deliver(b)
		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop shuts the hub down and closes every client
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
}

// Publish implements Publisher. Events are dropped when the hub is saturated
// or stopped.
func (h *Hub) Publish(channel, eventType string, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:      eventType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.log.WithError(err).WithField("channel", channel).Error("failed to encode realtime event")
		return
	}

	select {
	case h.broadcasts <- broadcast{channel: channel, data: payload}:
	case <-h.stop:
	default:
		h.countDropped(1)
		h.log.WithField("channel", channel).Warn("realtime hub saturated, dropping event")
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clients[client] = true

	h.mu.Lock()
	h.stats.TotalConnections++
	h.stats.ActiveConnections++
	h.stats.LastUpdate = time.Now()
	h.mu.Unlock()

	metrics.RealtimeClients.Inc()
	h.log.WithField("client_id", client.ID).Debug("realtime client registered")
}

// removeClient forgets client and closes its Send channel exactly once
func (h *Hub) removeClient(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)

	removed := int64(0)
	for channel, members := range h.subscriptions {
		if members[client] {
			delete(members, client)
			removed++
			if len(members) == 0 {
				delete(h.subscriptions, channel)
			}
		}
	}
	close(client.Send)

	h.mu.Lock()
	h.stats.ActiveConnections--
	h.stats.TotalSubscriptions -= removed
	h.stats.LastUpdate = time.Now()
	h.mu.Unlock()

	metrics.RealtimeClients.Dec()
	h.log.WithField("client_id", client.ID).Debug("realtime client unregistered")
}

func (h *Hub) handleRequest(r request) {
	if !h.clients[r.client] {
		return
	}

	switch r.req.Type {
	case MessageTypeSubscribe:
		if !ValidChannel(r.req.Channel) {
			h.reply(r.client, Message{Type: MessageTypeError, Error: "Invalid channel"})
			return
		}
		h.subscribe(subscription{client: r.client, channel: r.req.Channel})
		h.reply(r.client, Message{Type: MessageTypeSubscribe, Channel: r.req.Channel})
	case MessageTypeUnsubscribe:
		h.unsubscribe(subscription{client: r.client, channel: r.req.Channel})
		h.reply(r.client, Message{Type: MessageTypeUnsubscribe, Channel: r.req.Channel})
	case MessageTypePing:
		h.reply(r.client, Message{Type: MessageTypePong})
	default:
		h.reply(r.client, Message{Type: MessageTypeError, Error: "Unknown message type"})
	}
}

func (h *Hub) subscribe(s subscription) {
	members := h.subscriptions[s.channel]
	if members == nil {
		members = make(map[*Client]bool)
		h.subscriptions[s.channel] = members
	}
	if members[s.client] {
		return
	}
	members[s.client] = true

	h.mu.Lock()
	h.stats.TotalSubscriptions++
	h.stats.LastUpdate = time.Now()
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(s subscription) {
	members, ok := h.subscriptions[s.channel]
	if !ok || !members[s.client] {
		return
	}
	delete(members, s.client)
	if len(members) == 0 {
		delete(h.subscriptions, s.channel)
	}

	h.mu.Lock()
	h.stats.TotalSubscriptions--
	h.stats.LastUpdate = time.Now()
	h.mu.Unlock()
}

func (h *Hub) reply(client *Client, msg Message) {
	msg.Timestamp = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.send(client, data)
}

// send queues data for client, dropping the client when its buffer is full
func (h *Hub) send(client *Client, data []byte) bool {
	select {
	case client.Send <- data:
		return true
	default:
		h.log.WithField("client_id", client.ID).Warn("realtime client too slow, disconnecting")
		h.removeClient(client)
		return false
	}
}

func (h *Hub) deliver(b broadcast) {
	members := h.subscriptions[b.channel]
	if len(members) == 0 {
		return
	}

	// send may remove members, so iterate over a copy
	targets := make([]*Client, 0, len(members))
	for client := range members {
		targets = append(targets, client)
	}

	sent, dropped := int64(0), int64(0)
	for _, client := range targets {
		if h.send(client, b.data) {
			sent++
		} else {
			dropped++
		}
	}

	h.mu.Lock()
	h.stats.MessagesSent += sent
	h.stats.MessagesDropped += dropped
	h.stats.LastUpdate = time.Now()
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		h.removeClient(client)
	}
}

func (h *Hub) countDropped(n int64) {
	h.mu.Lock()
	h.stats.MessagesDropped += n
	h.mu.Unlock()
}

// Stats returns current connection statistics
func (h *Hub) Stats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}
