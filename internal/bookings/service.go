package bookings

import (
	"context"
	"time"

	"github.com/fleetflow/fleetflow/internal/rbac"
)

// RepositoryPort defines data access methods for bookings.
type RepositoryPort interface {
	List(ctx context.Context) ([]Booking, error)
	ListByUser(ctx context.Context, userID string) ([]Booking, error)
	Get(ctx context.Context, id string) (*Booking, error)
	Create(ctx context.Context, in CreateInput) (*Booking, error)
	SetStatus(ctx context.Context, id string, status Status) (*Booking, error)
}

// Service handles booking business logic.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns all bookings.
func (s *Service) List(ctx context.Context) ([]Booking, error) {
	return s.repo.List(ctx)
}

// ListByUser returns one user's bookings.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one booking.
func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	return s.repo.Get(ctx, id)
}

// Create validates the window and reserves the vehicle. Customers book
// for themselves; the caller forces UserID before reaching here.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Booking, error) {
	if in.StartDate.IsZero() || in.EndDate.IsZero() || !in.StartDate.Before(in.EndDate) {
		return nil, ErrInvalidDates
	}
	if in.EndDate.Before(s.now()) {
		return nil, ErrInvalidDates
	}
	return s.repo.Create(ctx, in)
}

// Cancel moves a booking to CANCELLED. Customers hold the cancel grant
// for their own bookings only; staff tiers may cancel any booking. The
// booking must still be pending or confirmed.
func (s *Service) Cancel(ctx context.Context, actorRole rbac.Role, actorID, bookingID string) (*Booking, error) {
	booking, err := s.repo.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorRole == rbac.RoleCustomer && booking.UserID != actorID {
		return nil, rbac.ErrForbidden
	}
	if booking.Status != StatusPending && booking.Status != StatusConfirmed {
		return nil, ErrNotCancellable
	}
	return s.repo.SetStatus(ctx, bookingID, StatusCancelled)
}

// Confirm moves a pending booking to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, bookingID string) (*Booking, error) {
	booking, err := s.repo.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	return s.repo.SetStatus(ctx, bookingID, StatusConfirmed)
}
