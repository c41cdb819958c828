package models

import (
	"fmt"
	"time"
)

type ReviewType string

const (
	ReviewByRenter ReviewType = "renter"
	ReviewByOwner  ReviewType = "owner"
)

func (t ReviewType) IsValid() bool {
	return t == ReviewByRenter || t == ReviewByOwner
}

const (
	MinRating = 1
	MaxRating = 5
)

// Review is immutable once stored; at most one exists per (BookingID, Type).
type Review struct {
	ID        int64      `json:"id"`
	BookingID string     `json:"booking_id"`
	AuthorID  int64      `json:"author_id"`
	Rating    int        `json:"rating"`
	Comment   string     `json:"comment,omitempty"`
	Type      ReviewType `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
}

func (r *Review) Validate() error {
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("rating must be between %d and %d, got %d", MinRating, MaxRating, r.Rating)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid review type: %q", r.Type)
	}
	return nil
}
