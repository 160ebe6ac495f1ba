package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vehiql/internal/model"
)

var carFields = []string{
	"id", "make", "model", "year", "price", "mileage", "color", "fuel_type", "transmission",
	"body_type", "seats", "description", "status", "featured", "images", "created_at", "updated_at",
}

func carSelect(alias string) string {
	cols := make([]string, len(carFields))
	for i, f := range carFields {
		col := f
		if alias != "" {
			col = alias + "." + f
		}
		if f == "seats" {
			col = "COALESCE(" + col + ", 0)"
		}
		cols[i] = col
	}
	return strings.Join(cols, ", ")
}

// carRow collects scan targets for one car and converts them afterwards.
type carRow struct {
	car    model.Car
	status string
	images string
}

func (r *carRow) dest() []any {
	c := &r.car
	return []any{&c.ID, &c.Make, &c.Model, &c.Year, &c.Price, &c.Mileage, &c.Color, &c.FuelType,
		&c.Transmission, &c.BodyType, &c.Seats, &c.Description, &r.status, &c.Featured, &r.images,
		&c.CreatedAt, &c.UpdatedAt}
}

func (r *carRow) finish() model.Car {
	r.car.Status = model.CarStatus(r.status)
	r.car.Images = []string{}
	if r.images != "" {
		_ = json.Unmarshal([]byte(r.images), &r.car.Images)
	}
	return r.car
}

// CarQuery narrows the public inventory listing.
type CarQuery struct {
	Search       string
	Make         string
	BodyType     string
	FuelType     string
	Transmission string
	MinPrice     float64
	MaxPrice     float64
	SortBy       string // newest, priceAsc, priceDesc
	Page         int
	Limit        int
}

// CreateCar inserts a new car and fills its ID and timestamps.
func (db *DB) CreateCar(ctx context.Context, c *model.Car) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CarAvailable
	}
	if c.Images == nil {
		c.Images = []string{}
	}
	images, err := json.Marshal(c.Images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}

	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	var seats any
	if c.Seats > 0 {
		seats = c.Seats
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO cars (id, make, model, year, price, mileage, color, fuel_type, transmission,
			body_type, seats, description, status, featured, images, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Make, c.Model, c.Year, c.Price, c.Mileage, c.Color, c.FuelType, c.Transmission,
		c.BodyType, seats, c.Description, string(c.Status), c.Featured, string(images), now, now)
	if err != nil {
		return fmt.Errorf("insert car: %w", err)
	}
	return nil
}

// GetCar returns ErrNotFound when the car does not exist.
func (db *DB) GetCar(ctx context.Context, id string) (*model.Car, error) {
	var row carRow
	err := db.QueryRowContext(ctx, `SELECT `+carSelect("")+` FROM cars WHERE id = ?`, id).Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get car: %w", err)
	}
	car := row.finish()
	return &car, nil
}

// ListCars returns one page of AVAILABLE cars and the total match count.
func (db *DB) ListCars(ctx context.Context, q CarQuery) ([]model.Car, int, error) {
	where := []string{"status = ?"}
	args := []any{string(model.CarAvailable)}

	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(LOWER(make) LIKE ? OR LOWER(model) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, like, like, like)
	}
	for col, val := range map[string]string{
		"make":         q.Make,
		"body_type":    q.BodyType,
		"fuel_type":    q.FuelType,
		"transmission": q.Transmission,
	} {
		if val != "" {
			where = append(where, "LOWER("+col+") = ?")
			args = append(args, strings.ToLower(val))
		}
	}
	if q.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, q.MinPrice)
	}
	if q.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, q.MaxPrice)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cars WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cars: %w", err)
	}

	order := "created_at DESC"
	switch q.SortBy {
	case "priceAsc":
		order = "price ASC"
	case "priceDesc":
		order = "price DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 6
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+carSelect("")+` FROM cars WHERE `+cond+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cars: %w", err)
	}
	defer rows.Close()

	cars, err := scanCars(rows)
	if err != nil {
		return nil, 0, err
	}
	return cars, total, nil
}

// FeaturedCars returns AVAILABLE featured cars, newest first.
func (db *DB) FeaturedCars(ctx context.Context, limit int) ([]model.Car, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := db.QueryContext(ctx, `SELECT `+carSelect("")+` FROM cars
		WHERE status = ? AND featured = 1 ORDER BY created_at DESC LIMIT ?`,
		string(model.CarAvailable), limit)
	if err != nil {
		return nil, fmt.Errorf("featured cars: %w", err)
	}
	defer rows.Close()
	return scanCars(rows)
}

// GetCarFilters returns the distinct facet values over AVAILABLE cars.
func (db *DB) GetCarFilters(ctx context.Context) (*model.CarFilters, error) {
	filters := &model.CarFilters{}
	targets := []struct {
		column string
		out    *[]string
	}{
		{"make", &filters.Makes},
		{"body_type", &filters.BodyTypes},
		{"fuel_type", &filters.FuelTypes},
		{"transmission", &filters.Transmissions},
	}

	for _, t := range targets {
		values, err := db.distinctCarValues(ctx, t.column)
		if err != nil {
			return nil, err
		}
		*t.out = values
	}

	err := db.QueryRowContext(ctx, `SELECT COALESCE(MIN(price), 0), COALESCE(MAX(price), 0)
		FROM cars WHERE status = ?`, string(model.CarAvailable)).
		Scan(&filters.PriceRange.Min, &filters.PriceRange.Max)
	if err != nil {
		return nil, fmt.Errorf("price range: %w", err)
	}
	return filters, nil
}

func (db *DB) distinctCarValues(ctx context.Context, column string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT `+column+` FROM cars
		WHERE status = ? AND `+column+` <> '' ORDER BY `+column+` ASC`, string(model.CarAvailable))
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// UpdateCar changes the status and/or featured flag. Nil fields are left as they are.
func (db *DB) UpdateCar(ctx context.Context, id string, status *model.CarStatus, featured *bool) (*model.Car, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}
	if status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*status))
	}
	if featured != nil {
		sets = append(sets, "featured = ?")
		args = append(args, *featured)
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx, `UPDATE cars SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update car: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetCar(ctx, id)
}

// DeleteCar removes a car together with its bookings.
func (db *DB) DeleteCar(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM cars WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete car: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CarSummaries returns status and featured flag of every car.
func (db *DB) CarSummaries(ctx context.Context) ([]model.CarSummary, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, status, featured FROM cars`)
	if err != nil {
		return nil, fmt.Errorf("car summaries: %w", err)
	}
	defer rows.Close()

	var out []model.CarSummary
	for rows.Next() {
		var s model.CarSummary
		var status string
		if err := rows.Scan(&s.ID, &status, &s.Featured); err != nil {
			return nil, err
		}
		s.Status = model.CarStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanCars(rows *sql.Rows) ([]model.Car, error) {
	cars := []model.Car{}
	for rows.Next() {
		var row carRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		cars = append(cars, row.finish())
	}
	return cars, rows.Err()
}
