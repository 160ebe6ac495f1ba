package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"vehiql/internal/model"
)

// DefaultDealershipID is the primary key of the single dealership row.
const DefaultDealershipID = "main"

// GetDealershipInfo returns the dealership with its hours ordered MONDAY..SUNDAY.
// On first use the row is created from profile and seeded with the default schedule.
func (db *DB) GetDealershipInfo(ctx context.Context, profile model.DealershipInfo) (*model.DealershipInfo, error) {
	if err := db.seedDealership(ctx, profile); err != nil {
		return nil, err
	}

	info := &model.DealershipInfo{}
	err := db.QueryRowContext(ctx, `
		SELECT id, name, address, phone, email, created_at, updated_at
		FROM dealership_info WHERE id = ?`, DefaultDealershipID).
		Scan(&info.ID, &info.Name, &info.Address, &info.Phone, &info.Email, &info.CreatedAt, &info.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load dealership: %w", err)
	}

	hours, err := db.GetWorkingHours(ctx)
	if err != nil {
		return nil, err
	}
	info.WorkingHours = hours
	return info, nil
}

func (db *DB) seedDealership(ctx context.Context, profile model.DealershipInfo) error {
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM dealership_info WHERE id = ?`,
		DefaultDealershipID).Scan(&exists); err != nil {
		return fmt.Errorf("check dealership: %w", err)
	}
	if exists > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO dealership_info (id, name, address, phone, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		DefaultDealershipID, profile.Name, profile.Address, profile.Phone, profile.Email, now, now)
	if err != nil {
		return fmt.Errorf("seed dealership: %w", err)
	}

	created, _ := res.RowsAffected()
	if created == 0 {
		return nil
	}

	if err := insertWorkingHours(ctx, tx, model.DefaultWorkingHours(), now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}

	db.logger.Info().Msg("Dealership seeded with default working hours")
	return nil
}

// GetWorkingHours returns the persisted schedule ordered MONDAY..SUNDAY.
func (db *DB) GetWorkingHours(ctx context.Context) ([]model.WorkingHours, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, dealership_id, day_of_week, open_time, close_time, is_open, created_at, updated_at
		FROM working_hours WHERE dealership_id = ?`, DefaultDealershipID)
	if err != nil {
		return nil, fmt.Errorf("query working hours: %w", err)
	}
	defer rows.Close()

	var hours []model.WorkingHours
	for rows.Next() {
		var wh model.WorkingHours
		var day string
		if err := rows.Scan(&wh.ID, &wh.DealershipID, &day, &wh.OpenTime, &wh.CloseTime,
			&wh.IsOpen, &wh.CreatedAt, &wh.UpdatedAt); err != nil {
			return nil, err
		}
		wh.DayOfWeek = model.DayOfWeek(day)
		hours = append(hours, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hours, func(i, j int) bool {
		return hours[i].DayOfWeek.Index() < hours[j].DayOfWeek.Index()
	})
	return hours, nil
}

// SaveWorkingHours replaces the whole schedule in one transaction.
func (db *DB) SaveWorkingHours(ctx context.Context, hours []model.WorkingHours) ([]model.WorkingHours, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM dealership_info WHERE id = ?`, DefaultDealershipID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dealership info: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load dealership: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM working_hours WHERE dealership_id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete working hours: %w", err)
	}
	if err := insertWorkingHours(ctx, tx, hours, time.Now()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit working hours: %w", err)
	}

	return db.GetWorkingHours(ctx)
}

func insertWorkingHours(ctx context.Context, tx *sql.Tx, hours []model.WorkingHours, now time.Time) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO working_hours (id, dealership_id, day_of_week, open_time, close_time, is_open, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare working hours: %w", err)
	}
	defer stmt.Close()

	for _, wh := range hours {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), DefaultDealershipID, string(wh.DayOfWeek),
			wh.OpenTime, wh.CloseTime, wh.IsOpen, now, now); err != nil {
			return fmt.Errorf("insert working hours %s: %w", wh.DayOfWeek, err)
		}
	}
	return nil
}
