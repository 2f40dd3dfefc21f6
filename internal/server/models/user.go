package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a row of the users table. PasswordHash is the PHC-encoded Argon2id
// credential and never leaves the server.
type User struct {
	ID           uuid.UUID
	UserName     string
	PasswordHash string
	CreatedAt    time.Time
}
