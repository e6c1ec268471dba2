// models/paper.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Paper is a local mirror of the paper catalog (owned by the catalog
// service, consumed here for match validation and leaderboard titles).
type Paper struct {
	ID       string `gorm:"primaryKey" json:"id"`
	Title    string `gorm:"not null" json:"title"`
	Abstract string `json:"abstract,omitempty"`
	Authors  string `json:"authors,omitempty"`
	URL      string `json:"url,omitempty"`

	Category    string `gorm:"index" json:"category"`
	Subcategory string `gorm:"index" json:"subcategory"`
	Year        int    `gorm:"index" json:"year"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// RankingEntry is one row of a leaderboard partition. Rows are recomputed
// wholesale on every match completion, never patched incrementally.
type RankingEntry struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"-"`

	Category    string `gorm:"index:idx_ranking_partition" json:"category"`
	Subcategory string `gorm:"index:idx_ranking_partition" json:"subcategory"`
	Year        int    `gorm:"index:idx_ranking_partition" json:"year"`

	PaperID    string  `gorm:"index" json:"paper_id"`
	PaperTitle string  `json:"paper_title,omitempty"`
	Matches    int     `json:"matches"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"win_rate"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`

	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
