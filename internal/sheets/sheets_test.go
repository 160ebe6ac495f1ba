package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehiql/internal/events"
)

// memSheet keeps rows in memory and understands the ranges the mirror uses.
type memSheet struct {
	rows      [][]any
	gets      int
	updateErr error
}

var rowRange = regexp.MustCompile(`!A(\d+):J\d+$`)

func (m *memSheet) Get(_ context.Context, rng string) ([][]any, error) {
	m.gets++
	if rowRange.MatchString(rng) {
		if len(m.rows) == 0 {
			return nil, nil
		}
		return m.rows[:1], nil
	}
	ids := make([][]any, len(m.rows))
	for i, r := range m.rows {
		ids[i] = []any{r[0]}
	}
	return ids, nil
}

func (m *memSheet) Append(_ context.Context, _ string, rows [][]any) error {
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memSheet) Update(_ context.Context, rng string, rows [][]any) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	match := rowRange.FindStringSubmatch(rng)
	if match == nil {
		return fmt.Errorf("unexpected range %s", rng)
	}
	n, _ := strconv.Atoi(match[1])
	for len(m.rows) < n {
		m.rows = append(m.rows, nil)
	}
	m.rows[n-1] = rows[0]
	return nil
}

func event(t *testing.T, typ string, p events.BookingPayload) events.Event {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return events.Event{Type: typ, Key: p.BookingID, Payload: data}
}

func newService(api ValuesAPI) *SheetsService {
	s := NewSheetsService(api, "", zerolog.New(io.Discard))
	s.now = func() time.Time { return time.Date(2026, 11, 1, 9, 30, 0, 0, time.UTC) }
	return s
}

func TestBookingRowValues(t *testing.T) {
	p := events.BookingPayload{
		BookingID: "b1", CarID: "c1", CarName: "2022 Toyota Corolla", UserName: "Ann",
		UserEmail: "ann@example.com", BookingDate: "2026-11-02", StartTime: "10:00", EndTime: "11:00",
		Status: "PENDING",
	}
	values := bookingRowValues(p, time.Date(2026, 11, 1, 9, 30, 0, 0, time.UTC))
	assert.Equal(t, []any{
		"b1", "2026-11-02", "10:00", "11:00", "2022 Toyota Corolla", "c1", "Ann", "ann@example.com",
		"PENDING", "2026-11-01 09:30:00",
	}, values)
	assert.Len(t, values, len(Header))
}

func TestEnsureHeader(t *testing.T) {
	sheet := &memSheet{}
	s := newService(sheet)

	require.NoError(t, s.EnsureHeader(context.Background()))
	require.Len(t, sheet.rows, 1)
	assert.Equal(t, Header, sheet.rows[0])

	require.NoError(t, s.EnsureHeader(context.Background()))
	assert.Len(t, sheet.rows, 1)
}

func TestDeliver_UpsertsRow(t *testing.T) {
	sheet := &memSheet{rows: [][]any{Header}}
	s := newService(sheet)
	ctx := context.Background()

	p := events.BookingPayload{BookingID: "b1", CarID: "c1", BookingDate: "2026-11-02",
		StartTime: "10:00", EndTime: "11:00", Status: "PENDING"}
	require.NoError(t, s.Deliver(ctx, event(t, events.TestDriveBooked, p)))
	require.Len(t, sheet.rows, 2)

	p.Status = "CANCELLED"
	require.NoError(t, s.Deliver(ctx, event(t, events.TestDriveCancelled, p)))
	require.Len(t, sheet.rows, 2)
	assert.Equal(t, "CANCELLED", sheet.rows[1][8])

	gets := sheet.gets
	p.Status = "CANCELLED"
	require.NoError(t, s.Deliver(ctx, event(t, events.TestDriveStatusChanged, p)))
	assert.Equal(t, gets, sheet.gets, "cached row position should be reused")
}

func TestDeliver_IgnoresOtherEvents(t *testing.T) {
	sheet := &memSheet{}
	s := newService(sheet)
	require.NoError(t, s.Deliver(context.Background(), events.Event{Type: events.DealershipHoursSaved, Payload: []byte(`{}`)}))
	assert.Empty(t, sheet.rows)
	assert.Zero(t, sheet.gets)
}

func TestUpsert_UpdateErrorDropsCachedRow(t *testing.T) {
	sheet := &memSheet{rows: [][]any{Header, {"b1"}}}
	s := newService(sheet)
	sheet.updateErr = errors.New("quota")

	err := s.UpsertBooking(context.Background(), events.BookingPayload{BookingID: "b1"})
	assert.ErrorContains(t, err, "quota")

	_, ok := s.getCachedRow("b1")
	assert.False(t, ok)
}

func TestCacheOperations(t *testing.T) {
	s := newService(&memSheet{})

	s.setCachedRow("b100", 5)
	row, ok := s.getCachedRow("b100")
	assert.True(t, ok)
	assert.Equal(t, 5, row)

	s.deleteCacheRow("b100")
	_, ok = s.getCachedRow("b100")
	assert.False(t, ok)

	s.setCachedRow("b200", 10)
	s.ClearCache()
	_, ok = s.getCachedRow("b200")
	assert.False(t, ok)
}
