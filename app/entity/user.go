package entity

import (
	"database/sql"
	"time"
)

type User struct {
	ID            uint64
	Username      string
	Email         string
	FullName      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
	RefreshToken  sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
