package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Guest is a checkout identity keyed by lowercased email.
type Guest struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email     string    `gorm:"column:email;not null;uniqueIndex"`
	FirstName string    `gorm:"column:first_name"`
	LastName  string    `gorm:"column:last_name"`
	Phone     string    `gorm:"column:phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (g *Guest) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
