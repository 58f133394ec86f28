package entity

import (
	"time"

	"github.com/google/uuid"
)

// Listing is owned by the marketplace catalog. This service only reads it.
type Listing struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Status    string    `gorm:"size:30;not null" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *Listing) TableName() string {
	return "listings"
}
