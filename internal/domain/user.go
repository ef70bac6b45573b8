package domain

import "time"

// User types. Customers are users of type CLIENTE; sales reference them.
const (
	UserTypeAdmin    = "ADMIN"
	UserTypeSeller   = "VENDEDOR"
	UserTypeCustomer = "CLIENTE"
)

// User represents an account in the system
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Phone        string    `json:"phone" db:"phone"`
	Type         string    `json:"type" db:"type"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Customer is the reduced view of a CLIENTE user that the sale workflow
// consumes for display fields.
type Customer struct {
	ID        int64  `json:"id" db:"id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Email     string `json:"email" db:"email"`
}
