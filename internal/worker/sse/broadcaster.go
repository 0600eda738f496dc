// Package sse provides Server-Sent Events broadcasting of pipeline events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// ClientBuffer is the number of pending messages a client may lag behind
	// before it is dropped.
	ClientBuffer = 32

	// HeartbeatInterval is the period of keep-alive comments.
	HeartbeatInterval = 15 * time.Second
)

// Named is implemented by payloads that carry an SSE event name.
type Named interface {
	EventName() string
}

// Client is a connected SSE subscriber.
type Client struct {
	messages chan []byte
	Done     chan struct{}
	ID       string
	once     sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Done) })
}

// Broadcaster fans messages out to connected clients. Slow clients are
// dropped instead of blocking the publisher.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
	nextID  int
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient registers a new subscriber.
func (b *Broadcaster) AddClient() *Client {
	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:       fmt.Sprintf("client-%d", b.nextID),
		messages: make(chan []byte, ClientBuffer),
		Done:     make(chan struct{}),
	}
	b.clients[client.ID] = client
	count := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("clientId", client.ID).Int("totalClients", count).Msg("SSE client connected")
	return client
}

// RemoveClient unregisters a subscriber and closes its Done channel.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	count := len(b.clients)
	b.mu.Unlock()

	client.close()
	log.Debug().Str("clientId", client.ID).Int("totalClients", count).Msg("SSE client disconnected")
}

// Broadcast encodes data as one SSE message and queues it for every client.
func (b *Broadcaster) Broadcast(data interface{}) {
	msg, err := encode(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE data")
		return
	}

	b.mu.RLock()
	var slow []*Client
	for _, c := range b.clients {
		select {
		case c.messages <- msg:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("clientId", c.ID).Msg("SSE client too slow, dropping")
		b.RemoveClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE streams broadcast messages to one HTTP client until it
// disconnects or is dropped.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := b.AddClient()
	defer b.RemoveClient(client)

	fmt.Fprintf(w, "event: connected\ndata: {\"clientId\":%q}\n\n", client.ID)
	flusher.Flush()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case msg := <-client.messages:
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func encode(data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var msg []byte
	if n, ok := data.(Named); ok && n.EventName() != "" {
		msg = append(msg, "event: "+n.EventName()+"\n"...)
	}
	msg = append(msg, "data: "...)
	msg = append(msg, payload...)
	return append(msg, '\n', '\n'), nil
}
