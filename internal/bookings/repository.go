package bookings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetflow/fleetflow/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const bookingColumns = `id, user_id, vehicle_id, start_date, end_date, status, COALESCE(notes, ''), created_at, updated_at`

// List returns all bookings, newest first.
func (r *Repository) List(ctx context.Context) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListByUser returns bookings owned by one user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// Get returns one booking by id.
func (r *Repository) Get(ctx context.Context, id string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// Create inserts a pending booking after checking the vehicle has no
// overlapping active reservation. The overlap check and insert run in
// one transaction so two racing requests cannot both win the window.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*Booking, error) {
	var booking Booking
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var clashes int
		err := tx.QueryRow(ctx, `
SELECT COUNT(*) FROM bookings
WHERE vehicle_id = $1
  AND status IN ('PENDING', 'CONFIRMED')
  AND start_date < $3
  AND end_date > $2`,
			in.VehicleID, in.StartDate, in.EndDate).Scan(&clashes)
		if err != nil {
			return err
		}
		if clashes > 0 {
			return ErrVehicleUnavailable
		}

		row := tx.QueryRow(ctx, `
INSERT INTO bookings (id, user_id, vehicle_id, start_date, end_date, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW(), NOW())
RETURNING `+bookingColumns,
			uuid.NewString(), in.UserID, in.VehicleID, in.StartDate, in.EndDate, string(StatusPending), in.Notes)
		booking, err = scanBooking(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// SetStatus updates the lifecycle state.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1
RETURNING `+bookingColumns, id, string(status))
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func collect(rows pgx.Rows) ([]Booking, error) {
	var bookings []Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (Booking, error) {
	var booking Booking
	var status string
	if err := row.Scan(&booking.ID, &booking.UserID, &booking.VehicleID, &booking.StartDate, &booking.EndDate, &status, &booking.Notes, &booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return Booking{}, err
	}
	booking.Status = Status(status)
	return booking, nil
}
