package model

import (
	"slices"
	"strings"
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	PermissionUserUpdateSelf = "USER_UPDATE_SELF"
	PermissionUserViewAll    = "USER_VIEW_ALL"
	PermissionUserDelete     = "USER_DELETE"
	PermissionOrgManage      = "ORG_MANAGE"
)

// Identity is a user as the identity store knows it, including the
// authorization data that is re-read on every authenticated request.
type Identity struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	OrganizationID string    `json:"organization_id"`
	PasswordHash   string    `json:"-"`
	Roles          []string  `json:"roles"`
	Permissions    []string  `json:"permissions"`
	Deleted        bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (i Identity) HasRole(role string) bool {
	return slices.ContainsFunc(i.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

func (i Identity) HasPermission(permission string) bool {
	return slices.ContainsFunc(i.Permissions, func(p string) bool {
		return strings.EqualFold(p, permission)
	})
}

// Principal is the public view of an identity returned by the API.
type Principal struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	FullName       string   `json:"full_name"`
	OrganizationID string   `json:"organization_id"`
	Roles          []string `json:"roles"`
	Permissions    []string `json:"permissions"`
}

func (i Identity) Principal() Principal {
	return Principal{
		ID:             i.ID,
		Email:          i.Email,
		FullName:       i.FullName,
		OrganizationID: i.OrganizationID,
		Roles:          i.Roles,
		Permissions:    i.Permissions,
	}
}

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail is the canonical form used for lookups and throttle keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
