package domain

import (
	"errors"
	"time"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	// ErrUserNotFound indicates that the user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameAlreadyExists indicates that the username is taken.
	ErrUsernameAlreadyExists = errors.New("username already exists")
	// ErrEmailAlreadyExists indicates that the email is taken.
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrWrongPassword indicates invalid login credentials.
	ErrWrongPassword = errors.New("wrong password")
)

// User holds marketplace identity data.
type User struct {
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserWithoutPassword is the user representation safe to return to clients.
type UserWithoutPassword struct {
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUserParams is the input data for creating a user.
type CreateUserParams struct {
	Username       string
	HashedPassword string
	FullName       string
	Email          string
}
