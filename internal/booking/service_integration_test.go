package booking

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehiql/internal/database"
	"vehiql/internal/events"
	"vehiql/internal/model"
)

func newStore(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "booking.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTryBook_ConcurrentCallersGetOneSlot(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	bus := events.NewEventBus(nil)

	var mu sync.Mutex
	var booked []string
	bus.Subscribe(events.TestDriveBooked, func(e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		booked = append(booked, e.Key)
		return nil
	})

	car := &model.Car{Make: "Mazda", Model: "MX-5", Year: 2023, Price: 30000, Status: model.CarAvailable}
	require.NoError(t, db.CreateCar(ctx, car))
	u1, err := db.EnsureUser(ctx, &model.User{ExternalID: "a"})
	require.NoError(t, err)
	u2, err := db.EnsureUser(ctx, &model.User{ExternalID: "b"})
	require.NoError(t, err)

	svc := NewService(db, fixedHours(model.DefaultWorkingHours()), bus, 0, nil)
	date := time.Date(2026, 11, 9, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, u := range []*model.User{u1, u2} {
		wg.Add(1)
		go func(i int, u *model.User) {
			defer wg.Done()
			_, results[i] = svc.TryBook(ctx, BookRequest{CarID: car.ID, BookingDate: date,
				StartTime: "10:00", EndTime: "11:00", Requester: RequesterOf(u)})
		}(i, u)
	}
	wg.Wait()

	var ok, taken int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrSlotTaken):
			taken++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, taken)
	assert.Len(t, booked, 1)

	bookings, err := db.ListCarBookingsOnDate(ctx, car.ID, date)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, model.StatusPending, bookings[0].Status)
}

func TestCancel_NonOwnerLeavesStatusUnchanged(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	svc := NewService(db, fixedHours(model.DefaultWorkingHours()), events.NewEventBus(nil), 0, nil)

	car := &model.Car{Make: "Kia", Model: "EV6", Year: 2024, Price: 45000, Status: model.CarAvailable}
	require.NoError(t, db.CreateCar(ctx, car))
	alice, err := db.EnsureUser(ctx, &model.User{ExternalID: "alice"})
	require.NoError(t, err)
	mallory, err := db.EnsureUser(ctx, &model.User{ExternalID: "mallory"})
	require.NoError(t, err)

	b, err := svc.TryBook(ctx, BookRequest{CarID: car.ID, BookingDate: time.Date(2026, 11, 9, 0, 0, 0, 0, time.UTC),
		StartTime: "12:00", EndTime: "13:00", Requester: RequesterOf(alice)})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, RequesterOf(mallory))
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)

	_, err = svc.UpdateStatus(ctx, b.ID, "COMPLETED", Requester{UserID: "root", Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, RequesterOf(alice))
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	stored, err = db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
}

func TestTryBook_LooseTimeSpellingsShareOneSlot(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	svc := NewService(db, fixedHours(model.DefaultWorkingHours()), events.NewEventBus(nil), 0, nil)

	car := &model.Car{Make: "Volvo", Model: "XC40", Year: 2025, Price: 41000, Status: model.CarAvailable}
	require.NoError(t, db.CreateCar(ctx, car))
	u, err := db.EnsureUser(ctx, &model.User{ExternalID: "driver"})
	require.NoError(t, err)
	date := time.Date(2026, 11, 9, 0, 0, 0, 0, time.UTC)

	book := func(start, end string) error {
		_, err := svc.TryBook(ctx, BookRequest{CarID: car.ID, BookingDate: date,
			StartTime: start, EndTime: end, Requester: RequesterOf(u)})
		return err
	}

	require.NoError(t, book("09:00", "10:00"))
	assert.ErrorIs(t, book("9:00", "10:00"), ErrSlotTaken)
	assert.ErrorIs(t, book(" 09:00", "10:00 "), ErrSlotTaken)

	require.NoError(t, book("10:00", "11:00 "))
	assert.ErrorIs(t, book("10:00", "11:00"), ErrSlotTaken)
	assert.ErrorIs(t, book("10:30", "11:30"), ErrInvalidSlot)
	assert.ErrorIs(t, book("10:00", "12:00"), ErrInvalidSlot)

	bookings, err := db.ListCarBookingsOnDate(ctx, car.ID, date)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	for _, b := range bookings {
		assert.Len(t, b.StartTime, 5)
		assert.Len(t, b.EndTime, 5)
	}
}
