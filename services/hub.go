// services/hub.go
package services

import (
	"log"
	"sync"

	"arena-feedback-system/models"
)

// Channel message types, the closed set a client has to dispatch on.
const (
	MessageInitial        = "initial"
	MessageFeedback       = "feedback"
	MessageFeedbackUpdate = "feedback_update"
	MessagePerformance    = "performance"
)

// ChannelMessage is the wire envelope for every server → client push.
type ChannelMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// InitialPayload gives a new subscriber a consistent starting point: the
// full feedback snapshot plus current performance for the match's papers.
type InitialPayload struct {
	Feedback    FeedbackSnapshot      `json:"feedback"`
	Performance []models.RankingEntry `json:"performance"`
}

// CountsPayload carries updated reaction counts (feedback_update).
type CountsPayload struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

// PerformanceSource supplies current ranking entries for a set of papers.
// Implemented by LeaderboardService.
type PerformanceSource interface {
	EntriesFor(category, subcategory string, year int, paperIDs []string) []models.RankingEntry
}

// sendBuffer bounds each subscriber's queue; a subscriber that falls this
// far behind starts losing broadcasts (at-most-once, no replay — it can
// reconnect for a fresh snapshot).
const sendBuffer = 64

// Subscriber is one client's ephemeral attachment to a match channel.
// Owned by the hub; the transport handler drains Messages until it closes.
type Subscriber struct {
	ClientID string
	MatchID  string
	send     chan ChannelMessage
}

// Messages is the stream the transport handler writes to the connection.
// Closed by the hub on Disconnect.
func (s *Subscriber) Messages() <-chan ChannelMessage {
	return s.send
}

// Hub fans FeedbackService and LeaderboardService changes out to every
// subscriber of a match. Broadcast is best-effort and never blocks the
// mutation path.
type Hub struct {
	feedback *FeedbackService
	perf     PerformanceSource

	mu      sync.RWMutex
	matches map[string]map[string]*Subscriber // matchID → clientID → sub
	clients map[string]*Subscriber            // clientID → sub
	meta    map[string]matchMeta              // matchID → partition coordinates
}

type matchMeta struct {
	paperIDs    []string
	category    string
	subcategory string
	year        int
}

func NewHub(feedback *FeedbackService, perf PerformanceSource) *Hub {
	return &Hub{
		feedback: feedback,
		perf:     perf,
		matches:  make(map[string]map[string]*Subscriber),
		clients:  make(map[string]*Subscriber),
		meta:     make(map[string]matchMeta),
	}
}

// RegisterMatch records the match's papers and leaderboard partition so the
// hub can target performance broadcasts. Called by the orchestrator.
func (h *Hub) RegisterMatch(m models.Match) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.meta[m.ID] = matchMeta{
		paperIDs:    m.PaperIDs(),
		category:    m.Category,
		subcategory: m.Subcategory,
		year:        m.Year,
	}
}

// Connect registers a subscription and queues the initial message built
// from the authoritative snapshot — a client connecting after N accepted
// reactions sees exactly N reflected, never a partial count. Registration
// happens before the snapshot: a mutation accepted while connecting lands
// either in a broadcast (registered in time) or in the snapshot (accepted
// before it was taken), never in neither.
func (h *Hub) Connect(matchID, clientID string) (*Subscriber, error) {
	if _, ok := h.feedback.partition(matchID); !ok {
		return nil, ErrNotFound
	}

	h.mu.Lock()

	// A reconnect with the same client id replaces the old subscription.
	if old, ok := h.clients[clientID]; ok {
		h.removeLocked(old)
	}

	sub := &Subscriber{
		ClientID: clientID,
		MatchID:  matchID,
		send:     make(chan ChannelMessage, sendBuffer),
	}
	if h.matches[matchID] == nil {
		h.matches[matchID] = make(map[string]*Subscriber)
	}
	h.matches[matchID][clientID] = sub
	h.clients[clientID] = sub
	meta, hasMeta := h.meta[matchID]
	watching := len(h.matches[matchID])
	h.mu.Unlock()

	var perf []models.RankingEntry
	if hasMeta && h.perf != nil {
		perf = h.perf.EntriesFor(meta.category, meta.subcategory, meta.year, meta.paperIDs)
	}

	// The initial is queued under the match's feedback lock: mutation
	// broadcasts enqueued before it are covered by the snapshot, ones
	// enqueued after it carry newer state. Either way the client's
	// initial-replaces-all merge converges on the authoritative counts.
	_ = h.feedback.withSnapshot(matchID, func(snapshot FeedbackSnapshot) {
		h.send(sub, ChannelMessage{
			Type: MessageInitial,
			Data: InitialPayload{Feedback: snapshot, Performance: perf},
		})
	})

	log.Printf("[WS] client %s subscribed to match %s (%d watching)", clientID, matchID, watching)
	return sub, nil
}

// Disconnect removes the subscription and closes its stream. Idempotent;
// never touches feedback or match state.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.clients[clientID]
	if !ok {
		return
	}
	h.removeLocked(sub)
	log.Printf("[WS] client %s disconnected from match %s", clientID, sub.MatchID)
}

// DisconnectSub removes exactly this subscription. A connection handler
// whose subscription was already replaced by a reconnect with the same
// client id must not tear down the replacement, so removal here is by
// subscriber identity, not client id. Idempotent.
func (h *Hub) DisconnectSub(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[sub.ClientID]; !ok || current != sub {
		return
	}
	h.removeLocked(sub)
	log.Printf("[WS] client %s disconnected from match %s", sub.ClientID, sub.MatchID)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	delete(h.clients, sub.ClientID)
	if subs := h.matches[sub.MatchID]; subs != nil {
		delete(subs, sub.ClientID)
		if len(subs) == 0 {
			delete(h.matches, sub.MatchID)
		}
	}
	close(sub.send)
}

// NotifyComment broadcasts a new comment to the match's subscribers.
func (h *Hub) NotifyComment(matchID string, comment models.Comment) {
	h.broadcast(matchID, ChannelMessage{Type: MessageFeedback, Data: comment})
}

// NotifyCounts broadcasts updated reaction counts.
func (h *Hub) NotifyCounts(matchID string, likes, dislikes int) {
	h.broadcast(matchID, ChannelMessage{Type: MessageFeedbackUpdate, Data: CountsPayload{Likes: likes, Dislikes: dislikes}})
}

// NotifyPerformance pushes recomputed ranking entries to every subscribed
// match in the partition whose papers were touched.
func (h *Hub) NotifyPerformance(category, subcategory string, year int, entries []models.RankingEntry) {
	byPaper := make(map[string]models.RankingEntry, len(entries))
	for _, e := range entries {
		byPaper[e.PaperID] = e
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for matchID, subs := range h.matches {
		meta, ok := h.meta[matchID]
		if !ok || meta.category != category || meta.subcategory != subcategory || meta.year != year {
			continue
		}
		var touched []models.RankingEntry
		for _, paperID := range meta.paperIDs {
			if e, ok := byPaper[paperID]; ok {
				touched = append(touched, e)
			}
		}
		if len(touched) == 0 {
			continue
		}
		msg := ChannelMessage{Type: MessagePerformance, Data: touched}
		for _, sub := range subs {
			h.send(sub, msg)
		}
	}
}

func (h *Hub) broadcast(matchID string, msg ChannelMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.matches[matchID] {
		h.send(sub, msg)
	}
}

// send is non-blocking: a full subscriber queue drops the message rather
// than stalling the writer (delivery is at-most-once per broadcast).
func (h *Hub) send(sub *Subscriber, msg ChannelMessage) {
	select {
	case sub.send <- msg:
	default:
		log.Printf("[WS] dropping %s message for slow client %s (match %s)", msg.Type, sub.ClientID, sub.MatchID)
	}
}
