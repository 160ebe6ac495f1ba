package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vehiql/internal/database"
	"vehiql/internal/events"
	"vehiql/internal/metrics"
	"vehiql/internal/model"
	"vehiql/internal/schedule"
	"vehiql/internal/slots"
)

// Repository is the booking storage used by the service.
type Repository interface {
	GetCar(ctx context.Context, id string) (*model.Car, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	HasActiveBooking(ctx context.Context, carID string, date time.Time, start, end string) (bool, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, from, to model.BookingStatus) error
	ListUserBookings(ctx context.Context, userID string) ([]model.BookingDetails, error)
	ListBookings(ctx context.Context, f database.BookingFilter) ([]model.BookingDetails, error)
}

// HoursSource yields the dealership weekly schedule.
type HoursSource interface {
	WorkingHours(ctx context.Context) ([]model.WorkingHours, error)
}

// Publisher emits domain events.
type Publisher interface {
	PublishJSON(eventType, key string, payload any) error
}

// Requester is the authenticated caller of an operation.
type Requester struct {
	UserID string
	Role   model.Role
	Name   string
	Email  string
}

func (r Requester) IsAdmin() bool {
	return r.Role == model.RoleAdmin
}

// RequesterOf builds a Requester from a stored user.
func RequesterOf(u *model.User) Requester {
	if u == nil {
		return Requester{}
	}
	return Requester{UserID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
}

// BookRequest asks for one slot of one car.
type BookRequest struct {
	CarID       string
	BookingDate time.Time
	StartTime   string
	EndTime     string
	Notes       string
	Requester   Requester
}

type Service struct {
	repo           Repository
	hours          HoursSource
	bus            Publisher
	maxAdvanceDays int
	now            func() time.Time
	logger         *zerolog.Logger
}

func NewService(repo Repository, hours HoursSource, bus Publisher, maxAdvanceDays int, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{repo: repo, hours: hours, bus: bus, maxAdvanceDays: maxAdvanceDays, now: time.Now, logger: logger}
}

// ValidateBookingDate rejects dates before today and beyond the advance window.
func (s *Service) ValidateBookingDate(date time.Time) error {
	today := model.DateOnly(s.now())
	day := model.DateOnly(date)

	if day.Before(today) {
		return ErrPastDate
	}
	if s.maxAdvanceDays > 0 && day.After(today.AddDate(0, 0, s.maxAdvanceDays)) {
		return ErrDateTooFar
	}
	return nil
}

// TryBook creates a PENDING booking if the car is available and the slot is free.
// The store's unique index settles races between concurrent callers.
func (s *Service) TryBook(ctx context.Context, req BookRequest) (*model.Booking, error) {
	start, end, err := canonicalSlot(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	car, err := s.repo.GetCar(ctx, req.CarID)
	if errors.Is(err, database.ErrNotFound) {
		metrics.IncBookAttempt("car_unavailable")
		return nil, ErrCarUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load car: %w", err)
	}
	if car.Status != model.CarAvailable {
		metrics.IncBookAttempt("car_unavailable")
		return nil, ErrCarUnavailable
	}

	date := model.DateOnly(req.BookingDate)
	if err := s.checkWorkingHours(ctx, date, start, end); err != nil {
		return nil, err
	}

	taken, err := s.repo.HasActiveBooking(ctx, car.ID, date, start, end)
	if err != nil {
		return nil, err
	}
	if taken {
		metrics.IncBookAttempt("slot_taken")
		return nil, ErrSlotTaken
	}

	b := &model.Booking{
		CarID:       car.ID,
		UserID:      req.Requester.UserID,
		BookingDate: date,
		StartTime:   start,
		EndTime:     end,
		Status:      model.StatusPending,
		Notes:       req.Notes,
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		if errors.Is(err, database.ErrDuplicateBooking) {
			metrics.IncBookAttempt("slot_taken")
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	metrics.IncBookAttempt("booked")
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("car_id", b.CarID).
		Str("user_id", b.UserID).
		Str("date", b.DateKey()).
		Str("slot", b.StartTime+"-"+b.EndTime).
		Msg("Test drive booked")

	s.publish(events.TestDriveBooked, b, "", car, req.Requester, req.Requester.UserID)
	return b, nil
}

// Cancel sets a booking to CANCELLED on behalf of its owner or an admin.
func (s *Service) Cancel(ctx context.Context, bookingID string, req Requester) (*model.Booking, error) {
	// One retry covers a status change that lands between read and conditional update.
	for attempt := 0; ; attempt++ {
		b, err := s.getBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.UserID != req.UserID && !req.IsAdmin() {
			return nil, ErrUnauthorized
		}
		if err := cancellable(b.Status); err != nil {
			return nil, err
		}

		prev := b.Status
		err = s.repo.UpdateBookingStatus(ctx, b.ID, prev, model.StatusCancelled)
		if errors.Is(err, database.ErrConcurrentModification) {
			if attempt == 0 {
				continue
			}
			return nil, fmt.Errorf("%w: booking changed concurrently", ErrInvalidState)
		}
		if err != nil {
			return nil, fmt.Errorf("cancel booking: %w", err)
		}

		b.Status = model.StatusCancelled
		b.UpdatedAt = s.now()
		metrics.IncTransition(string(model.StatusCancelled))
		s.logger.Info().Str("booking_id", b.ID).Str("by", req.UserID).Msg("Test drive cancelled")

		s.publishWithLookup(ctx, events.TestDriveCancelled, b, prev, req.UserID)
		return b, nil
	}
}

// UpdateStatus lets an admin move a non-terminal booking to any status.
func (s *Service) UpdateStatus(ctx context.Context, bookingID, status string, req Requester) (*model.Booking, error) {
	if !req.IsAdmin() {
		return nil, ErrUnauthorized
	}
	next, err := model.ParseBookingStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := cancellable(b.Status); err != nil {
		return nil, err
	}
	if b.Status == next {
		return b, nil
	}

	prev := b.Status
	if err := s.repo.UpdateBookingStatus(ctx, b.ID, prev, next); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, fmt.Errorf("%w: booking changed concurrently", ErrInvalidState)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	b.Status = next
	b.UpdatedAt = s.now()
	metrics.IncTransition(string(next))
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Str("by", req.UserID).
		Msg("Test drive status updated")

	eventType := events.TestDriveStatusChanged
	if next == model.StatusCancelled {
		eventType = events.TestDriveCancelled
	}
	s.publishWithLookup(ctx, eventType, b, prev, req.UserID)
	return b, nil
}

// ListForUser returns the requester's own bookings, newest date first.
func (s *Service) ListForUser(ctx context.Context, req Requester) ([]model.BookingDetails, error) {
	return s.repo.ListUserBookings(ctx, req.UserID)
}

// ListForAdmin returns all bookings filtered by status and free-text search.
func (s *Service) ListForAdmin(ctx context.Context, req Requester, status, search string) ([]model.BookingDetails, error) {
	if !req.IsAdmin() {
		return nil, ErrUnauthorized
	}
	f := database.BookingFilter{Search: search}
	if status != "" {
		st, err := model.ParseBookingStatus(status)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		f.Status = st
	}
	return s.repo.ListBookings(ctx, f)
}

func (s *Service) getBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	return b, nil
}

func cancellable(status model.BookingStatus) error {
	switch status {
	case model.StatusCancelled:
		return ErrAlreadyCancelled
	case model.StatusCompleted:
		return ErrAlreadyCompleted
	case model.StatusNoShow:
		return ErrInvalidState
	}
	return nil
}

// canonicalSlot parses both times and returns them as zero-padded "HH:MM",
// the form stored and matched by the active-booking index.
func canonicalSlot(start, end string) (string, string, error) {
	s, err := model.ParseClock(start)
	if err != nil {
		return "", "", ErrInvalidSlot
	}
	e, err := model.ParseClock(end)
	if err != nil || !e.After(s) {
		return "", "", ErrInvalidSlot
	}
	return s.Format(model.TimeLayout), e.Format(model.TimeLayout), nil
}

// checkWorkingHours accepts only one of the hourly slots generated for the day.
func (s *Service) checkWorkingHours(ctx context.Context, date time.Time, start, end string) error {
	hours, err := s.hours.WorkingHours(ctx)
	if err != nil {
		return fmt.Errorf("load working hours: %w", err)
	}
	day, open := schedule.Resolve(hours, date)
	if !open || !slots.Contains(slots.Generate(day.OpenTime, day.CloseTime), start, end) {
		metrics.IncBookAttempt("invalid_slot")
		return ErrInvalidSlot
	}
	return nil
}

// publishWithLookup resolves car and customer for the payload; lookup failures only thin the payload.
func (s *Service) publishWithLookup(ctx context.Context, eventType string, b *model.Booking, prev model.BookingStatus, actorID string) {
	car, err := s.repo.GetCar(ctx, b.CarID)
	if err != nil {
		car = nil
	}
	customer := Requester{UserID: b.UserID}
	if u, err := s.repo.GetUser(ctx, b.UserID); err == nil {
		customer = RequesterOf(u)
	}
	s.publish(eventType, b, prev, car, customer, actorID)
}

func (s *Service) publish(eventType string, b *model.Booking, prev model.BookingStatus, car *model.Car, customer Requester, actorID string) {
	if s.bus == nil {
		return
	}
	payload := events.BookingPayload{
		BookingID:      b.ID,
		CarID:          b.CarID,
		UserID:         b.UserID,
		UserName:       customer.Name,
		UserEmail:      customer.Email,
		BookingDate:    b.DateKey(),
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Status:         string(b.Status),
		PreviousStatus: string(prev),
		ActorID:        actorID,
		Notes:          b.Notes,
	}
	if car != nil {
		payload.CarName = fmt.Sprintf("%d %s %s", car.Year, car.Make, car.Model)
	}
	if err := s.bus.PublishJSON(eventType, b.ID, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("Failed to publish event")
	}
}
