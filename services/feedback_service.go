// services/feedback_service.go
package services

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"arena-feedback-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReactionState is the caller-visible reaction aggregate after a mutation.
// UserReaction is the calling user's reaction after the call ("" = none).
type ReactionState struct {
	Likes        int    `json:"likes"`
	Dislikes     int    `json:"dislikes"`
	UserReaction string `json:"user_reaction,omitempty"`
}

// FeedbackSnapshot is the full current feedback state for a match, sent to
// newly connecting channel subscribers and returned by the read endpoint.
type FeedbackSnapshot struct {
	Likes    int              `json:"likes"`
	Dislikes int              `json:"dislikes"`
	Comments []models.Comment `json:"comments"`
}

// FeedbackNotifier receives deltas for every accepted mutation. Implemented
// by the realtime hub; must never block.
type FeedbackNotifier interface {
	NotifyComment(matchID string, comment models.Comment)
	NotifyCounts(matchID string, likes, dislikes int)
}

// FeedbackService owns the canonical reaction counts and comment log per
// match. All mutations go through React and Comment; same-match writes
// serialize on the match's own lock, so independent matches never contend.
type FeedbackService struct {
	DB *gorm.DB // nil disables write-through (tests)

	notifier FeedbackNotifier

	mu      sync.RWMutex
	matches map[string]*matchFeedback
}

// matchFeedback is one match's partition: a single owning writer guarded by
// its own mutex.
type matchFeedback struct {
	mu        sync.Mutex
	likes     int
	dislikes  int
	reactions map[string]string // userID → like|dislike
	comments  []models.Comment
	nextSeq   int64
}

func NewFeedbackService(db *gorm.DB) *FeedbackService {
	return &FeedbackService{
		DB:      db,
		matches: make(map[string]*matchFeedback),
	}
}

// SetNotifier wires the realtime hub. Must be called before serving.
func (s *FeedbackService) SetNotifier(n FeedbackNotifier) {
	s.notifier = n
}

// Register creates the feedback partition for a match. Called by the
// orchestrator on match creation and on boot for existing matches. If a
// database is attached, previously persisted interactions are replayed so
// counts and the comment log survive restarts.
func (s *FeedbackService) Register(matchID string) {
	s.mu.Lock()
	if _, ok := s.matches[matchID]; ok {
		s.mu.Unlock()
		return
	}
	mf := &matchFeedback{reactions: make(map[string]string), nextSeq: 1}
	s.matches[matchID] = mf
	s.mu.Unlock()

	if s.DB == nil {
		return
	}

	var rows []models.MatchInteraction
	if err := s.DB.Where("match_id = ?", matchID).Order("created_at ASC").Find(&rows).Error; err != nil {
		log.Printf("[FEEDBACK] failed to reload interactions for match %s: %v", matchID, err)
		return
	}

	mf.mu.Lock()
	defer mf.mu.Unlock()
	for _, row := range rows {
		switch row.Type {
		case models.InteractionLike:
			mf.reactions[row.UserID] = models.InteractionLike
			mf.likes++
		case models.InteractionDislike:
			mf.reactions[row.UserID] = models.InteractionDislike
			mf.dislikes++
		case models.InteractionComment:
			mf.comments = append(mf.comments, models.CommentFromInteraction(row))
			if row.Seq >= mf.nextSeq {
				mf.nextSeq = row.Seq + 1
			}
		}
	}
	sort.Slice(mf.comments, func(i, j int) bool { return mf.comments[i].Seq < mf.comments[j].Seq })
}

func (s *FeedbackService) partition(matchID string) (*matchFeedback, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mf, ok := s.matches[matchID]
	return mf, ok
}

// React applies a like/dislike with toggle semantics: repeating the current
// reaction clears it; a different reaction moves the user between buckets
// atomically; with no prior reaction the new bucket grows by one. Atomic per
// (match, user) — the match lock is the single authoritative write path.
func (s *FeedbackService) React(matchID, userID, kind string) (ReactionState, error) {
	if kind != models.InteractionLike && kind != models.InteractionDislike {
		return ReactionState{}, validationf("reaction kind must be like or dislike, got %q", kind)
	}
	if userID == "" {
		return ReactionState{}, ErrUnauthorized
	}

	mf, ok := s.partition(matchID)
	if !ok {
		return ReactionState{}, ErrNotFound
	}

	mf.mu.Lock()
	defer mf.mu.Unlock()

	prev := mf.reactions[userID]
	switch {
	case prev == kind:
		// Toggle off.
		delete(mf.reactions, userID)
		mf.bucket(kind, -1)
	case prev != "":
		// Switch buckets: old −1, new +1.
		mf.reactions[userID] = kind
		mf.bucket(prev, -1)
		mf.bucket(kind, +1)
	default:
		mf.reactions[userID] = kind
		mf.bucket(kind, +1)
	}

	s.persistReaction(matchID, userID, mf.reactions[userID])

	if s.notifier != nil {
		s.notifier.NotifyCounts(matchID, mf.likes, mf.dislikes)
	}
	return ReactionState{Likes: mf.likes, Dislikes: mf.dislikes, UserReaction: mf.reactions[userID]}, nil
}

func (mf *matchFeedback) bucket(kind string, delta int) {
	if kind == models.InteractionLike {
		mf.likes += delta
	} else {
		mf.dislikes += delta
	}
}

// Comment appends to the match's comment log. The sequence number is
// assigned at the moment of acceptance, strictly increasing per match,
// never reused. Comments require a verified identity unless anonymity is
// explicitly requested.
func (s *FeedbackService) Comment(matchID, authorID, text string, tags []string, anonymous bool) (models.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return models.Comment{}, validationf("comment text must not be empty")
	}
	if authorID == "" && !anonymous {
		return models.Comment{}, ErrUnauthorized
	}

	mf, ok := s.partition(matchID)
	if !ok {
		return models.Comment{}, ErrNotFound
	}

	mf.mu.Lock()
	defer mf.mu.Unlock()

	comment := models.Comment{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		Seq:         mf.nextSeq,
		IsAnonymous: anonymous,
		Text:        text,
		Tags:        tags,
		CreatedAt:   time.Now().UTC(),
	}
	if !anonymous {
		comment.AuthorID = authorID
	}
	mf.nextSeq++
	mf.comments = append(mf.comments, comment)

	if s.DB != nil {
		row := comment.ToInteraction()
		if err := s.DB.Create(&row).Error; err != nil {
			log.Printf("[FEEDBACK] failed to persist comment %s on match %s: %v", comment.ID, matchID, err)
		}
	}

	if s.notifier != nil {
		s.notifier.NotifyComment(matchID, comment)
	}
	return comment, nil
}

// Snapshot returns the latest accepted feedback state, comments in sequence
// order. The returned slice is a copy; callers may hold it freely.
func (s *FeedbackService) Snapshot(matchID string) (FeedbackSnapshot, error) {
	var snapshot FeedbackSnapshot
	err := s.withSnapshot(matchID, func(current FeedbackSnapshot) {
		snapshot = current
	})
	return snapshot, err
}

// withSnapshot runs fn with the current state while holding the match lock.
// Notifier deltas go out under the same lock, so whatever fn does is totally
// ordered against the mutation broadcast stream — the hub uses this to queue
// a subscriber's initial without a gap.
func (s *FeedbackService) withSnapshot(matchID string, fn func(FeedbackSnapshot)) error {
	mf, ok := s.partition(matchID)
	if !ok {
		return ErrNotFound
	}

	mf.mu.Lock()
	defer mf.mu.Unlock()

	comments := make([]models.Comment, len(mf.comments))
	copy(comments, mf.comments)
	fn(FeedbackSnapshot{Likes: mf.likes, Dislikes: mf.dislikes, Comments: comments})
	return nil
}

// persistReaction writes through the user's current reaction ("" = cleared).
// Called with the match lock held so persisted order matches accept order.
func (s *FeedbackService) persistReaction(matchID, userID, current string) {
	if s.DB == nil {
		return
	}
	err := s.DB.Where("match_id = ? AND user_id = ? AND type IN ?", matchID, userID,
		[]string{models.InteractionLike, models.InteractionDislike}).
		Delete(&models.MatchInteraction{}).Error
	if err != nil {
		log.Printf("[FEEDBACK] failed to clear reaction row (match=%s user=%s): %v", matchID, userID, err)
		return
	}
	if current == "" {
		return
	}
	row := models.MatchInteraction{
		ID:      uuid.NewString(),
		MatchID: matchID,
		UserID:  userID,
		Type:    current,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		log.Printf("[FEEDBACK] failed to persist reaction row (match=%s user=%s): %v", matchID, userID, err)
	}
}
