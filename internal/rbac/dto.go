package rbac

import (
	"time"

	"github.com/frahmantamala/tenant-identity/internal/core/common/validation"
)

type CreateOrganizationDTO struct {
	Name string `json:"name"`
}

func (d CreateOrganizationDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(200)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CreatePermissionDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (d CreatePermissionDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("description", d.Description).MaxLength(500)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CreateRoleDTO struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

func (d CreateRoleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("description", d.Description).MaxLength(500)
	v.Field("permission_ids", d.PermissionIDs).UUID()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type AssignRoleDTO struct {
	UserID string `json:"user_id"`
}

func (d AssignRoleDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("user_id", d.UserID).Required().UUID()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RoleResponse struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	IsActive       bool     `json:"is_active"`
	PermissionIDs  []string `json:"permission_ids"`
}

type PermissionCheckResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

type UserPermissionsResponse struct {
	OrganizationID string   `json:"organization_id"`
	Permissions    []string `json:"permissions"`
}

type MemberResponse struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

type MemberPageResponse struct {
	OrganizationID string           `json:"organization_id"`
	Total          int64            `json:"total"`
	Page           int              `json:"page"`
	Limit          int              `json:"limit"`
	Members        []MemberResponse `json:"members"`
}
