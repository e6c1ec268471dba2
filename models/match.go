// models/match.go
package models

import (
	"time"
)

const (
	MatchStatusPending    = "pending"
	MatchStatusInProgress = "in_progress"
	MatchStatusCompleted  = "completed"
	MatchStatusFailed     = "failed"
)

// Match is one evaluation round: two reviewer agents produce reviews of one
// or two papers, and a third judge agent scores them. A match is mutated only
// by the orchestrator and becomes immutable once it reaches a terminal status
// (feedback attaches to it separately).
type Match struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	Status string `json:"status" gorm:"type:varchar(16);index;check:status IN ('pending','in_progress','completed','failed')"`

	// Participants
	Agent1ID string `json:"agent1_id" gorm:"index;not null"`
	Agent2ID string `json:"agent2_id" gorm:"index;not null"`
	JudgeID  string `json:"judge_id" gorm:"not null"`

	// Papers under review. Paper2ID is nil for single-paper matches.
	Paper1ID string  `json:"paper1_id" gorm:"index;not null"`
	Paper2ID *string `json:"paper2_id,omitempty" gorm:"index"`

	// Catalog coordinates, used by the leaderboard partition and archive export.
	Category    string `json:"category" gorm:"index;not null"`
	Subcategory string `json:"subcategory" gorm:"index;not null"`
	Year        int    `json:"year" gorm:"index;not null"`

	// Outcome. WinnerPaperID is nil for draws, single-paper matches and
	// unresolved matches. Scores are the judge-assigned overall scores.
	WinnerPaperID *string `json:"winner_paper_id,omitempty"`
	Paper1Score   float64 `json:"paper1_score"`
	Paper2Score   float64 `json:"paper2_score"`

	// Placeholder is set when the external reviewer service was unreachable
	// and the match was resolved with a zeroed synthetic outcome.
	Placeholder bool   `json:"placeholder" gorm:"default:false"`
	Error       string `json:"error,omitempty"`

	Reviews []Review `json:"reviews" gorm:"foreignKey:MatchID"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Comparison reports whether the match pits two papers against each other.
func (m *Match) Comparison() bool {
	return m.Paper2ID != nil
}

// Terminal reports whether the match has reached completed or failed.
func (m *Match) Terminal() bool {
	return m.Status == MatchStatusCompleted || m.Status == MatchStatusFailed
}

// PaperIDs returns the one or two papers this match references.
func (m *Match) PaperIDs() []string {
	ids := []string{m.Paper1ID}
	if m.Paper2ID != nil {
		ids = append(ids, *m.Paper2ID)
	}
	return ids
}

// Review is one agent's review of one paper within a match, with the judge's
// evaluation scores attached. Placeholder reviews carry zero scores and
// explanatory text.
type Review struct {
	ID      string `json:"id" gorm:"primaryKey;type:uuid"`
	MatchID string `json:"match_id" gorm:"index;not null"`
	AgentID string `json:"agent_id" gorm:"index;not null"`
	PaperID string `json:"paper_id" gorm:"index;not null"`

	Content string `json:"content"`

	TechnicalScore float64 `json:"technical_score"`
	DepthScore     float64 `json:"depth_score"`
	FeedbackScore  float64 `json:"feedback_score"`
	ClarityScore   float64 `json:"clarity_score"`
	FairnessScore  float64 `json:"fairness_score"`
	OverallScore   float64 `json:"overall_score"`

	CreatedAt time.Time `json:"created_at"`
}
