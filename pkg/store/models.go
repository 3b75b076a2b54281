package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type PetModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Species     string `gorm:"not null;index"`
	Breed       string
	Description string `gorm:"type:text"`
	AgeMonths   int    `gorm:"not null"`
	City        string `gorm:"index"`
	ShelterName string
	PhotoKeys   datatypes.JSON `gorm:"type:jsonb"`
	Available   bool           `gorm:"not null;index"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

type UserModel struct {
	ID          string         `gorm:"primaryKey"`
	Email       string         `gorm:"uniqueIndex;not null"`
	DisplayName string
	Preferences datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time
}

// SwipeModel carries the composite unique index that makes the first
// decision per (user, pet) win under concurrency.
type SwipeModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_swipes_user_pet,priority:1"`
	PetID     string    `gorm:"not null;uniqueIndex:idx_swipes_user_pet,priority:2"`
	Liked     bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type MatchModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_matches_user_pet,priority:1"`
	PetID     string    `gorm:"not null;uniqueIndex:idx_matches_user_pet,priority:2"`
	Status    string    `gorm:"not null"`
	MatchedAt time.Time `gorm:"not null;index"`
}
