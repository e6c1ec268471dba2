// services/channel_client.go
package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"arena-feedback-system/models"

	"github.com/gorilla/websocket"
)

// ClientState is the client-side materialized view of one match channel.
// Snapshots are immutable: every applied message produces a fresh value,
// so a caller may hold a state and read it without locking.
type ClientState struct {
	Feedback    FeedbackSnapshot
	Performance []models.RankingEntry
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ChannelClient subscribes to a match channel, keeps a merged ClientState
// and reconnects with a fixed delay when the connection drops. Missed
// messages are not replayed; the initial snapshot after a reconnect is
// authoritative and replaces whatever the client had.
type ChannelClient struct {
	URL        string
	RetryDelay time.Duration

	// OnState, when set, observes every state replacement.
	OnState func(ClientState)

	mu     sync.RWMutex
	state  ClientState
	closed chan struct{}
	once   sync.Once
}

func NewChannelClient(url string) *ChannelClient {
	return &ChannelClient{
		URL:        url,
		RetryDelay: 5 * time.Second,
		closed:     make(chan struct{}),
	}
}

// State returns the current merged view.
func (c *ChannelClient) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run connects and consumes until Close. Each dropped connection is
// retried after RetryDelay, indefinitely.
func (c *ChannelClient) Run() {
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.URL, nil)
		if err != nil {
			log.Printf("[CHANNEL] dial %s failed: %v — retrying in %s", c.URL, err, c.RetryDelay)
		} else {
			c.consume(conn)
		}

		select {
		case <-c.closed:
			return
		case <-time.After(c.RetryDelay):
		}
	}
}

func (c *ChannelClient) consume(conn *websocket.Conn) {
	defer conn.Close()

	// A fresh connection means the next initial message resets the view.
	done := make(chan struct{})
	go func() {
		select {
		case <-c.closed:
			conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[CHANNEL] connection to %s lost: %v", c.URL, err)
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[CHANNEL] skipping malformed message: %v", err)
			continue
		}
		if err := c.Apply(msg.Type, msg.Data); err != nil {
			log.Printf("[CHANNEL] skipping %s message: %v", msg.Type, err)
		}
	}
}

// Apply merges one typed message into the state. Exposed separately so the
// merge logic is exercisable without a live connection.
func (c *ChannelClient) Apply(msgType string, data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state
	switch msgType {
	case MessageInitial:
		var payload InitialPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		next = ClientState{Feedback: payload.Feedback, Performance: payload.Performance}
	case MessageFeedback:
		var comment models.Comment
		if err := json.Unmarshal(data, &comment); err != nil {
			return err
		}
		comments := make([]models.Comment, 0, len(next.Feedback.Comments)+1)
		comments = append(comments, next.Feedback.Comments...)
		comments = append(comments, comment)
		next.Feedback.Comments = comments
	case MessageFeedbackUpdate:
		var counts CountsPayload
		if err := json.Unmarshal(data, &counts); err != nil {
			return err
		}
		next.Feedback.Likes = counts.Likes
		next.Feedback.Dislikes = counts.Dislikes
	case MessagePerformance:
		var entries []models.RankingEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		next.Performance = entries
	default:
		return fmt.Errorf("unknown message type %q", msgType)
	}

	c.state = next
	if c.OnState != nil {
		c.OnState(next)
	}
	return nil
}

// Close stops Run and any in-flight connection. Idempotent.
func (c *ChannelClient) Close() {
	c.once.Do(func() { close(c.closed) })
}
