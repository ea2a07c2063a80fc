package models

// Role names stored in user_roles
const (
	RoleAdmin   = "admin"
	RolePremium = "premium"
)

// Identity is an authenticated user. Email is optional.
type Identity struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// DisplayName returns the email when known, the id otherwise
func (i *Identity) DisplayName() string {
	if i.Email != "" {
		return i.Email
	}
	return i.ID
}

// HasRole checks role membership
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
