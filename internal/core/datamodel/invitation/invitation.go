package invitation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Invitation struct {
	ID             string    `gorm:"primaryKey;size:36"`
	UserID         string    `gorm:"column:user_id;size:36;not null;index"`
	OrganizationID string    `gorm:"column:organization_id;size:36;not null;index"`
	ExpiresAt      time.Time `gorm:"column:expires_at;not null"`
	IsValid        bool      `gorm:"column:is_valid;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Invitation) TableName() string { return "invitations" }

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
