package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vehiql/internal/model"
)

const bookingColumns = `b.id, b.car_id, b.user_id, b.booking_date, b.start_time, b.end_time, b.status,
	COALESCE(b.notes, ''), b.created_at, b.updated_at`

type bookingRow struct {
	booking model.Booking
	date    string
	status  string
}

func (r *bookingRow) dest() []any {
	b := &r.booking
	return []any{&b.ID, &b.CarID, &b.UserID, &r.date, &b.StartTime, &b.EndTime, &r.status,
		&b.Notes, &b.CreatedAt, &b.UpdatedAt}
}

func (r *bookingRow) finish() (model.Booking, error) {
	date, err := model.ParseDate(r.date)
	if err != nil {
		return model.Booking{}, fmt.Errorf("booking %s: bad date %q: %w", r.booking.ID, r.date, err)
	}
	r.booking.BookingDate = date
	r.booking.Status = model.BookingStatus(r.status)
	return r.booking, nil
}

// BookingFilter narrows the booking list. Zero fields match everything.
type BookingFilter struct {
	Status model.BookingStatus
	Date   time.Time
	Search string
}

// CreateBooking inserts b. ErrDuplicateBooking is returned when an active
// booking already holds the same car slot.
func (db *DB) CreateBooking(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	b.BookingDate = model.DateOnly(b.BookingDate)

	_, err := db.ExecContext(ctx, `
		INSERT INTO test_drive_bookings (id, car_id, user_id, booking_date, start_time, end_time, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CarID, b.UserID, b.DateKey(), b.StartTime, b.EndTime, string(b.Status),
		nullIfEmpty(b.Notes), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// HasActiveBooking reports whether a PENDING or CONFIRMED booking holds the exact slot.
func (db *DB) HasActiveBooking(ctx context.Context, carID string, date time.Time, start, end string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM test_drive_bookings
		WHERE car_id = ? AND booking_date = ? AND start_time = ? AND end_time = ?
		  AND status IN ('PENDING', 'CONFIRMED')`,
		carID, date.Format(model.DateLayout), start, end).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return n > 0, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	var row bookingRow
	err := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM test_drive_bookings b WHERE b.id = ?`, id).
		Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	b, err := row.finish()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBookingStatus moves a booking from one status to another. It fails with
// ErrConcurrentModification when the stored status is no longer from.
func (db *DB) UpdateBookingStatus(ctx context.Context, id string, from, to model.BookingStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE test_drive_bookings SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), time.Now(), id, string(from))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ListCarBookingsOnDate returns the non-cancelled bookings of a car on a date.
func (db *DB) ListCarBookingsOnDate(ctx context.Context, carID string, date time.Time) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM test_drive_bookings b
		WHERE b.car_id = ? AND b.booking_date = ? AND b.status <> 'CANCELLED'
		ORDER BY b.start_time ASC`,
		carID, date.Format(model.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list car bookings: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var row bookingRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		b, err := row.finish()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LatestUserBookingForCar returns the newest PENDING, CONFIRMED or COMPLETED
// booking of a user for a car, or ErrNotFound.
func (db *DB) LatestUserBookingForCar(ctx context.Context, userID, carID string) (*model.Booking, error) {
	var row bookingRow
	err := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM test_drive_bookings b
		WHERE b.user_id = ? AND b.car_id = ? AND b.status IN ('PENDING', 'CONFIRMED', 'COMPLETED')
		ORDER BY b.created_at DESC LIMIT 1`, userID, carID).Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest booking: %w", err)
	}
	b, err := row.finish()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListUserBookings returns a user's bookings with their cars, newest date first.
func (db *DB) ListUserBookings(ctx context.Context, userID string) ([]model.BookingDetails, error) {
	return db.listDetails(ctx, `WHERE b.user_id = ?`, []any{userID})
}

// ListBookings returns all bookings matching f with car and customer attached.
func (db *DB) ListBookings(ctx context.Context, f BookingFilter) ([]model.BookingDetails, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "b.status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Date.IsZero() {
		where = append(where, "b.booking_date = ?")
		args = append(args, f.Date.Format(model.DateLayout))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, `(LOWER(c.make) LIKE ? OR LOWER(c.model) LIKE ?
			OR LOWER(u.name) LIKE ? OR LOWER(u.email) LIKE ?)`)
		args = append(args, like, like, like, like)
	}

	cond := ""
	if len(where) > 0 {
		cond = "WHERE " + strings.Join(where, " AND ")
	}
	return db.listDetails(ctx, cond, args)
}

func (db *DB) listDetails(ctx context.Context, cond string, args []any) ([]model.BookingDetails, error) {
	query := `SELECT ` + bookingColumns + `, ` + carSelect("c") + `,
			u.id, u.name, u.email, COALESCE(u.phone, ''), COALESCE(u.image_url, '')
		FROM test_drive_bookings b
		JOIN cars c ON c.id = b.car_id
		JOIN users u ON u.id = b.user_id
		` + cond + `
		ORDER BY b.booking_date DESC, b.start_time ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	out := []model.BookingDetails{}
	for rows.Next() {
		var br bookingRow
		var cr carRow
		var user model.UserSummary
		dest := append(br.dest(), cr.dest()...)
		dest = append(dest, &user.ID, &user.Name, &user.Email, &user.Phone, &user.ImageURL)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		b, err := br.finish()
		if err != nil {
			return nil, err
		}
		car := cr.finish()
		out = append(out, model.BookingDetails{Booking: b, Car: &car, User: &user})
	}
	return out, rows.Err()
}

// BookingSummaries returns id, car and status of every booking.
func (db *DB) BookingSummaries(ctx context.Context) ([]model.BookingSummary, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, car_id, status FROM test_drive_bookings`)
	if err != nil {
		return nil, fmt.Errorf("booking summaries: %w", err)
	}
	defer rows.Close()

	var out []model.BookingSummary
	for rows.Next() {
		var s model.BookingSummary
		var status string
		if err := rows.Scan(&s.ID, &s.CarID, &status); err != nil {
			return nil, err
		}
		s.Status = model.BookingStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}
