// models/user.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// ArenaUser is a local snapshot of user data needed for feedback attribution.
// Owned and managed solely by this service; populated via the user sync
// worker from the profile service.
type ArenaUser struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // profile service UUID
	Username       string `gorm:"index;not null" json:"username"`
	Email          string `json:"email,omitempty"`

	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	IsBanned bool `json:"is_banned" gorm:"default:false"` // local arena ban

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
