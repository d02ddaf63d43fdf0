package bookings

import (
	"errors"
	"time"
)

// Status tracks the booking lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Booking represents a vehicle reservation.
type Booking struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	VehicleID string    `json:"vehicleId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	// ErrNotFound indicates no booking matches the given id.
	ErrNotFound = errors.New("bookings: not found")
	// ErrInvalidDates indicates the requested window is unusable.
	ErrInvalidDates = errors.New("bookings: invalid date range")
	// ErrNotCancellable indicates the booking already left the
	// cancellable part of its lifecycle.
	ErrNotCancellable = errors.New("bookings: not cancellable")
	// ErrInvalidTransition indicates a lifecycle move the state machine
	// does not permit.
	ErrInvalidTransition = errors.New("bookings: invalid status transition")
	// ErrVehicleUnavailable indicates an overlapping confirmed booking.
	ErrVehicleUnavailable = errors.New("bookings: vehicle unavailable")
)

// CreateInput carries fields for a new reservation.
type CreateInput struct {
	UserID    string
	VehicleID string
	StartDate time.Time
	EndDate   time.Time
	Notes     string
}
