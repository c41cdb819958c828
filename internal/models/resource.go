package models

import "time"

// Resource is a rentable physical item as seen by the booking engine.
type Resource struct {
	ID          int64     `yaml:"id" json:"id"`
	OwnerID     int64     `yaml:"owner_id" json:"owner_id"`
	Name        string    `yaml:"name" json:"name"`
	PricePerDay Money     `yaml:"price_per_day" json:"price_per_day"`
	IsAvailable bool      `yaml:"is_available" json:"is_available"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time `yaml:"-" json:"updated_at"`
}
