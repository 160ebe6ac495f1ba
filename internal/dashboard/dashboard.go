package dashboard

import (
	"context"
	"math"

	"vehiql/internal/model"
)

type CarStats struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Sold        int `json:"sold"`
	Unavailable int `json:"unavailable"`
	Featured    int `json:"featured"`
}

type TestDriveStats struct {
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	Confirmed      int     `json:"confirmed"`
	Completed      int     `json:"completed"`
	Cancelled      int     `json:"cancelled"`
	NoShow         int     `json:"noShow"`
	ConversionRate float64 `json:"conversionRate"`
}

type Data struct {
	Cars       CarStats       `json:"cars"`
	TestDrives TestDriveStats `json:"testDrives"`
}

// Compute aggregates inventory and test-drive counts. The conversion rate is the
// share of completed test drives whose car was later sold, as a percentage with
// two decimals.
func Compute(cars []model.CarSummary, bookings []model.BookingSummary) Data {
	var d Data

	for _, c := range cars {
		d.Cars.Total++
		switch c.Status {
		case model.CarAvailable:
			d.Cars.Available++
		case model.CarSold:
			d.Cars.Sold++
		case model.CarUnavailable:
			d.Cars.Unavailable++
		}
		if c.Featured {
			d.Cars.Featured++
		}
	}

	testedCars := make(map[string]bool)
	for _, b := range bookings {
		d.TestDrives.Total++
		switch b.Status {
		case model.StatusPending:
			d.TestDrives.Pending++
		case model.StatusConfirmed:
			d.TestDrives.Confirmed++
		case model.StatusCompleted:
			d.TestDrives.Completed++
			testedCars[b.CarID] = true
		case model.StatusCancelled:
			d.TestDrives.Cancelled++
		case model.StatusNoShow:
			d.TestDrives.NoShow++
		}
	}

	if d.TestDrives.Completed > 0 {
		soldAfterTest := 0
		for _, c := range cars {
			if c.Status == model.CarSold && testedCars[c.ID] {
				soldAfterTest++
			}
		}
		rate := float64(soldAfterTest) / float64(d.TestDrives.Completed) * 100
		d.TestDrives.ConversionRate = math.Round(rate*100) / 100
	}
	return d
}

// Source supplies the summaries Compute works on.
type Source interface {
	CarSummaries(ctx context.Context) ([]model.CarSummary, error)
	BookingSummaries(ctx context.Context) ([]model.BookingSummary, error)
}

// Load reads the summaries from src and computes the dashboard.
func Load(ctx context.Context, src Source) (*Data, error) {
	cars, err := src.CarSummaries(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := src.BookingSummaries(ctx)
	if err != nil {
		return nil, err
	}
	d := Compute(cars, bookings)
	return &d, nil
}
