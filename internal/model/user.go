package model

import "time"

// User stores staff accounts. Role: "admin" | "staff"
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:80;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	Role         string `gorm:"type:varchar(20);not null;default:'staff'"`
	CreatedAt    time.Time
}
