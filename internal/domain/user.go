package domain

import "time"

// UserRole enumerates organizational roles.
type UserRole string

const (
	RoleEmployee       UserRole = "EMPLOYEE"
	RoleManager        UserRole = "MANAGER"
	RoleDepartmentHead UserRole = "DEPARTMENT_HEAD"
	RoleAdmin          UserRole = "ADMIN"
)

// ValidUserRole reports whether r is a known role.
func ValidUserRole(r UserRole) bool {
	switch r {
	case RoleEmployee, RoleManager, RoleDepartmentHead, RoleAdmin:
		return true
	}
	return false
}

// User is the domain model for everyone who touches a ticket:
// requesters, approvers, delegates and administrators.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	DepartmentID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanApprove reports whether the user may be assigned approval steps.
func (u *User) CanApprove() bool {
	if u == nil || !u.Active {
		return false
	}
	switch u.Role {
	case RoleManager, RoleDepartmentHead, RoleAdmin:
		return true
	}
	return false
}
