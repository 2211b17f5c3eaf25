package models

import "time"

// UserRole is an opaque authorization role matched against per-operation allow-lists.
type UserRole string

const (
	RoleApplicant  UserRole = "APPLICANT"
	RoleDRC        UserRole = "DRC"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
	RoleFaculty    UserRole = "FACULTY"
)

// StaffRoles own the review gates of the admission pipeline.
var StaffRoles = []UserRole{RoleDRC, RoleAdmin, RoleSuperAdmin}

// IsStaff reports whether the role belongs to DRC or administration.
func (r UserRole) IsStaff() bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

// User represents a principal stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Guide is the public projection of a FACULTY user available for allocation.
type Guide struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
