package database

import (
	"context"
	"fmt"
	"time"

	"vehiql/internal/model"
)

// SaveCar adds carID to the user's wishlist. Saving twice is a no-op.
func (db *DB) SaveCar(ctx context.Context, userID, carID string) error {
	if _, err := db.GetCar(ctx, carID); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `INSERT INTO user_saved_cars (user_id, car_id, saved_at)
		VALUES (?, ?, ?) ON CONFLICT(user_id, car_id) DO NOTHING`, userID, carID, time.Now())
	if err != nil {
		return fmt.Errorf("save car: %w", err)
	}
	return nil
}

// UnsaveCar removes carID from the user's wishlist. Removing an unsaved car is a no-op.
func (db *DB) UnsaveCar(ctx context.Context, userID, carID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM user_saved_cars WHERE user_id = ? AND car_id = ?`,
		userID, carID); err != nil {
		return fmt.Errorf("unsave car: %w", err)
	}
	return nil
}

func (db *DB) IsCarSaved(ctx context.Context, userID, carID string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_saved_cars WHERE user_id = ? AND car_id = ?`,
		userID, carID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is car saved: %w", err)
	}
	return n > 0, nil
}

// ListSavedCars returns the user's wishlist, most recently saved first.
func (db *DB) ListSavedCars(ctx context.Context, userID string) ([]model.Car, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+carSelect("c")+` FROM user_saved_cars s
		JOIN cars c ON c.id = s.car_id
		WHERE s.user_id = ?
		ORDER BY s.saved_at DESC, c.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list saved cars: %w", err)
	}
	defer rows.Close()
	return scanCars(rows)
}
