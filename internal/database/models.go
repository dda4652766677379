package database

import "time"

// Structure represents an investment fund or vehicle being administered.
type Structure struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User roles. Role-gated operations are decided by the auth policy table,
// not by inline branching in handlers.
const (
	RoleAdmin       = "admin"
	RoleFundManager = "fund_manager"
	RoleInvestor    = "investor"
)

// User represents a backend user account.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}
