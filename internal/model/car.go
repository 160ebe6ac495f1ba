package model

import (
	"fmt"
	"time"
)

// CarStatus is the listing state of a car.
type CarStatus string

const (
	CarAvailable   CarStatus = "AVAILABLE"
	CarUnavailable CarStatus = "UNAVAILABLE"
	CarSold        CarStatus = "SOLD"
)

func ParseCarStatus(s string) (CarStatus, error) {
	switch st := CarStatus(s); st {
	case CarAvailable, CarUnavailable, CarSold:
		return st, nil
	default:
		return "", fmt.Errorf("invalid car status: %q", s)
	}
}

// Car is a vehicle listing.
type Car struct {
	ID           string    `json:"id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Price        float64   `json:"price"`
	Mileage      int       `json:"mileage"`
	Color        string    `json:"color"`
	FuelType     string    `json:"fuelType"`
	Transmission string    `json:"transmission"`
	BodyType     string    `json:"bodyType"`
	Seats        int       `json:"seats,omitempty"`
	Description  string    `json:"description"`
	Status       CarStatus `json:"status"`
	Featured     bool      `json:"featured"`
	Images       []string  `json:"images"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks the fields required to list a car.
func (c *Car) Validate() error {
	switch {
	case c.Make == "":
		return fmt.Errorf("make is required")
	case c.Model == "":
		return fmt.Errorf("model is required")
	case c.Year < 1900:
		return fmt.Errorf("year is invalid")
	case c.Price <= 0:
		return fmt.Errorf("price must be positive")
	case c.Mileage < 0:
		return fmt.Errorf("mileage must not be negative")
	}
	if _, err := ParseCarStatus(string(c.Status)); err != nil {
		return err
	}
	return nil
}

// CarFilters are the distinct facet values of the available inventory.
type CarFilters struct {
	Makes         []string `json:"makes"`
	BodyTypes     []string `json:"bodyTypes"`
	FuelTypes     []string `json:"fuelTypes"`
	Transmissions []string `json:"transmissions"`
	PriceRange    struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"priceRange"`
}

// CarSummary is the slice of a car the dashboard aggregates over.
type CarSummary struct {
	ID       string
	Status   CarStatus
	Featured bool
}
