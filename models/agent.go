// models/agent.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Agent is a local mirror of the review-agent registry. Owned by the agent
// service; populated here via the agent sync worker and consumed for match
// validation and display names.
type Agent struct {
	ID       string `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"index;not null" json:"name"`
	Model    string `json:"model"`
	Provider string `json:"provider"`

	Description string `json:"description,omitempty"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
