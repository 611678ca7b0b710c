package domain

import (
	"strings"
	"time"
)

// Role is the closed set of profile roles. It is parsed once when a
// session is resolved and compared as a typed value everywhere else.
type Role string

const (
	RoleColaborador Role = "colaborador"
	RoleGestor      Role = "gestor"
	RoleAdmin       Role = "admin"
)

// ParseRole validates a raw role string coming from the profiles table
// or from a request body.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleColaborador:
		return RoleColaborador, nil
	case RoleGestor:
		return RoleGestor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", &ErrValidation{Field: "role", Message: "papel deve ser colaborador, gestor ou admin"}
}

// CanReview reports whether the role may approve, reject and read other
// people's records.
func (r Role) CanReview() bool {
	return r == RoleGestor || r == RoleAdmin
}

// Identity is what the identity provider vouches for a credential.
type Identity struct {
	UserID string
	Email  string
}

// Actor is the authenticated caller of an operation, resolved server-side
// from the session credential.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}

// CanRead reports whether the actor may read a record owned by ownerID.
func (a *Actor) CanRead(ownerID string) bool {
	return a.UserID == ownerID || a.Role.CanReview()
}

// Profile is the identity record of a user (table profiles).
type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Role      string     `json:"role"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// DisplayName returns "first last", falling back to the email.
func (p *Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// UpdateProfileRequest is the body for PUT /v1/profile.
type UpdateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UpdateRoleRequest is the body for PUT /v1/users/{id}/role.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// CreateUserRequest is the body for POST /v1/users.
type CreateUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	Role      string `json:"role"`
}

// CreateUserResponse is returned by POST /v1/users.
type CreateUserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}
