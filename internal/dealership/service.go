// Package dealership serves the dealership profile, its weekly schedule and the
// free test-drive slots derived from it.
package dealership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vehiql/internal/access"
	"vehiql/internal/cache"
	"vehiql/internal/database"
	"vehiql/internal/events"
	"vehiql/internal/model"
	"vehiql/internal/slots"
)

var ErrCarNotFound = errors.New("car not found")

// Store is the persistence the dealership service needs.
type Store interface {
	GetDealershipInfo(ctx context.Context, profile model.DealershipInfo) (*model.DealershipInfo, error)
	SaveWorkingHours(ctx context.Context, hours []model.WorkingHours) ([]model.WorkingHours, error)
	GetCar(ctx context.Context, id string) (*model.Car, error)
	ListCarBookingsOnDate(ctx context.Context, carID string, date time.Time) ([]model.Booking, error)
}

type Publisher interface {
	PublishJSON(eventType, key string, payload any) error
}

type Service struct {
	store   Store
	cache   *cache.Cache
	bus     Publisher
	profile model.DealershipInfo
	logger  zerolog.Logger
}

// NewService wires the service. profile is used only to seed the first dealership row.
func NewService(store Store, c *cache.Cache, bus Publisher, profile model.DealershipInfo, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		cache:   c,
		bus:     bus,
		profile: profile,
		logger:  logger.With().Str("component", "dealership").Logger(),
	}
}

// Info returns the dealership with hours ordered MONDAY..SUNDAY, seeding defaults on first use.
func (s *Service) Info(ctx context.Context) (*model.DealershipInfo, error) {
	var info model.DealershipInfo
	if s.cache.Get(ctx, "dealership", cache.DealershipKey, &info) {
		return &info, nil
	}

	got, err := s.store.GetDealershipInfo(ctx, s.profile)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, cache.DealershipKey, got)
	return got, nil
}

// WorkingHours returns the weekly schedule.
func (s *Service) WorkingHours(ctx context.Context) ([]model.WorkingHours, error) {
	info, err := s.Info(ctx)
	if err != nil {
		return nil, err
	}
	return info.WorkingHours, nil
}

// SaveWorkingHours replaces the weekly schedule. Admin only.
func (s *Service) SaveWorkingHours(ctx context.Context, actor *model.User, hours []model.WorkingHours) ([]model.WorkingHours, error) {
	if !actor.IsAdmin() {
		return nil, &access.AccessDeniedError{Reason: "admin access required"}
	}

	normalized, err := NormalizeHours(hours)
	if err != nil {
		return nil, err
	}

	// Make sure the dealership row exists before replacing its hours.
	if _, err := s.store.GetDealershipInfo(ctx, s.profile); err != nil {
		return nil, err
	}

	saved, err := s.store.SaveWorkingHours(ctx, normalized)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("by", actor.ID).Int("days", len(saved)).Msg("working hours saved")
	if s.bus != nil {
		payload := events.HoursPayload{DealershipID: database.DefaultDealershipID, Days: len(saved), ActorID: actor.ID}
		if err := s.bus.PublishJSON(events.DealershipHoursSaved, database.DefaultDealershipID, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish hours event")
		}
	}
	return saved, nil
}

// ValidationError describes rejected working-hours input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NormalizeHours canonicalises day names and checks each entry plus per-day uniqueness.
func NormalizeHours(hours []model.WorkingHours) ([]model.WorkingHours, error) {
	seen := make(map[model.DayOfWeek]bool, len(hours))
	out := make([]model.WorkingHours, 0, len(hours))
	for _, wh := range hours {
		day, err := model.ParseDayOfWeek(string(wh.DayOfWeek))
		if err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
		if seen[day] {
			return nil, &ValidationError{Msg: fmt.Sprintf("duplicate day of week: %s", day)}
		}
		seen[day] = true

		wh.DayOfWeek = day
		if err := wh.Validate(); err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
		out = append(out, wh)
	}
	return out, nil
}

// FreeSlots returns the bookable slots of a car on date.
func (s *Service) FreeSlots(ctx context.Context, carID string, date time.Time) ([]slots.Slot, error) {
	date = model.DateOnly(date)
	key := cache.SlotsKey(carID, date.Format(model.DateLayout))

	var cached []slots.Slot
	if s.cache.Get(ctx, "slots", key, &cached) {
		return cached, nil
	}

	version := s.cache.SlotsVersion(ctx, carID)
	if _, err := s.store.GetCar(ctx, carID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrCarNotFound
		}
		return nil, err
	}

	info, err := s.Info(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.ListCarBookingsOnDate(ctx, carID, date)
	if err != nil {
		return nil, err
	}

	free := slots.ForDate(info.WorkingHours, date, bookings)
	s.cache.SetSlots(ctx, carID, key, version, free)
	return free, nil
}
