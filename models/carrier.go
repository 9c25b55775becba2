package models

import (
	"time"

	"github.com/google/uuid"
)

// Carrier is an insurance carrier in the portal directory. Rules refer
// to carriers by name only; the directory is reference data.
type Carrier struct {
	ID        string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"name"`
	Email     string     `gorm:"type:varchar(256)" json:"email"`
	Roles     StringList `gorm:"serializer:json" json:"roles"`
	IsActive  bool       `gorm:"default:true" json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewCarrierID generates a collision-resistant carrier identifier.
func NewCarrierID() string {
	return "car-" + uuid.New().String()
}
