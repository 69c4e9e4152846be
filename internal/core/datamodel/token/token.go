package token

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BlacklistedToken is a revoked token keyed by its raw string.
type BlacklistedToken struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Token     string    `gorm:"column:token;type:text;not null;uniqueIndex"`
	CreatedBy string    `gorm:"column:created_by;size:36"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (BlacklistedToken) TableName() string { return "blacklisted_tokens" }

func (b *BlacklistedToken) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

type EphemeralToken struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"column:user_id;size:36;not null;index"`
	Purpose   string    `gorm:"column:purpose;size:32;not null"`
	Code      string    `gorm:"column:code;size:64;index"`
	Attempts  int       `gorm:"column:attempts;not null;default:0"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (EphemeralToken) TableName() string { return "ephemeral_tokens" }

func (e *EphemeralToken) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
