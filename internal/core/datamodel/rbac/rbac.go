package rbac

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Organization struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"column:name;uniqueIndex;not null"`
	CreatedBy string    `gorm:"column:created_by;size:36"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Organization) TableName() string { return "organizations" }

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// OrganizationMember is the user <-> organization membership join.
type OrganizationMember struct {
	OrganizationID string    `gorm:"primaryKey;column:organization_id;size:36"`
	UserID         string    `gorm:"primaryKey;column:user_id;size:36;index"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrganizationMember) TableName() string { return "organization_members" }

type Permission struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Permission) TableName() string { return "permissions" }

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type Role struct {
	ID             string    `gorm:"primaryKey;size:36"`
	OrganizationID string    `gorm:"column:organization_id;size:36;not null;uniqueIndex:idx_roles_org_name"`
	Name           string    `gorm:"column:name;not null;uniqueIndex:idx_roles_org_name"`
	Description    string    `gorm:"column:description"`
	IsActive       bool      `gorm:"column:is_active;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Role) TableName() string { return "roles" }

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type RolePermission struct {
	RoleID       string `gorm:"primaryKey;column:role_id;size:36"`
	PermissionID string `gorm:"primaryKey;column:permission_id;size:36;index"`
}

func (RolePermission) TableName() string { return "role_permissions" }

type UserRole struct {
	UserID         string    `gorm:"primaryKey;column:user_id;size:36"`
	RoleID         string    `gorm:"primaryKey;column:role_id;size:36;index"`
	OrganizationID string    `gorm:"column:organization_id;size:36;not null;index"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UserRole) TableName() string { return "user_roles" }

// MemberRecord is a membership joined with the member's account. It is a read
// model and has no table of its own.
type MemberRecord struct {
	UserID   string    `gorm:"column:user_id"`
	Email    string    `gorm:"column:email"`
	Name     string    `gorm:"column:name"`
	JoinedAt time.Time `gorm:"column:joined_at"`
}
