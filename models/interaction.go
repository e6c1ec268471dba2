// models/interaction.go
package models

import (
	"encoding/json"
	"time"
)

const (
	InteractionLike    = "like"
	InteractionDislike = "dislike"
	InteractionComment = "comment"
)

// MatchInteraction is the persisted form of a viewer reaction or comment.
// Reaction rows are keyed (match_id, user_id); comment rows are append-only.
// The in-memory feedback state is authoritative at runtime — these rows exist
// so it can be rebuilt on boot.
type MatchInteraction struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID string `gorm:"index:idx_interaction_match;not null" json:"match_id"`
	UserID  string `gorm:"index" json:"user_id,omitempty"`

	Type        string `gorm:"type:varchar(16);not null;check:type IN ('like','dislike','comment')" json:"type"`
	Content     string `json:"content,omitempty"`
	TagsJSON    string `json:"-"`
	IsAnonymous bool   `gorm:"default:false" json:"is_anonymous"`

	// Seq is the per-match comment sequence number; 0 for reaction rows.
	Seq int64 `gorm:"index:idx_interaction_match" json:"seq,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Comment is the API shape of a posted comment. AuthorID is empty when the
// comment was explicitly posted anonymously.
type Comment struct {
	ID          string    `json:"id"`
	MatchID     string    `json:"match_id"`
	Seq         int64     `json:"seq"`
	AuthorID    string    `json:"author_id,omitempty"`
	IsAnonymous bool      `json:"is_anonymous"`
	Text        string    `json:"text"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToInteraction converts a comment to its persisted row.
func (c Comment) ToInteraction() MatchInteraction {
	tags, _ := json.Marshal(c.Tags)
	return MatchInteraction{
		ID:          c.ID,
		MatchID:     c.MatchID,
		UserID:      c.AuthorID,
		Type:        InteractionComment,
		Content:     c.Text,
		TagsJSON:    string(tags),
		IsAnonymous: c.IsAnonymous,
		Seq:         c.Seq,
		CreatedAt:   c.CreatedAt,
	}
}

// CommentFromInteraction rebuilds the API shape from a persisted row.
func CommentFromInteraction(row MatchInteraction) Comment {
	var tags []string
	if row.TagsJSON != "" {
		_ = json.Unmarshal([]byte(row.TagsJSON), &tags)
	}
	return Comment{
		ID:          row.ID,
		MatchID:     row.MatchID,
		Seq:         row.Seq,
		AuthorID:    row.UserID,
		IsAnonymous: row.IsAnonymous,
		Text:        row.Content,
		Tags:        tags,
		CreatedAt:   row.CreatedAt,
	}
}
