package domain

// User roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User statuses
const (
	StatusPending  = "pending"
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// ValidRoles returns list of valid user roles
func ValidRoles() []string {
	return []string{RoleAdmin, RoleUser}
}

// ValidStatuses returns list of valid user statuses
func ValidStatuses() []string {
	return []string{StatusPending, StatusEnabled, StatusDisabled}
}

// Keys of a user document.
const (
	UserKeyUsername = "username"
	UserKeyEmail    = "email"
	UserKeyPassword = "password"
	UserKeyAPIKey   = "apikey"
	UserKeyRole     = "role"
	UserKeyStatus   = "status"
)

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	Email  *string `json:"email"`  // optional
	Role   *string `json:"role"`   // optional
	Status *string `json:"status"` // optional
}

type SetPasswordRequest struct {
	Password string `json:"password"`
}
