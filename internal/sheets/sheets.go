// Package sheets mirrors test-drive bookings into a Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"vehiql/internal/events"
)

// Header is the first row of the mirror sheet.
var Header = []any{"Booking ID", "Date", "Start", "End", "Car", "Car ID", "Customer", "Email", "Status", "Updated"}

// ValuesAPI is the subset of the Sheets values API the mirror needs.
type ValuesAPI interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Append(ctx context.Context, rng string, rows [][]any) error
	Update(ctx context.Context, rng string, rows [][]any) error
}

type SheetsService struct {
	api       ValuesAPI
	sheetName string
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	rowCache map[string]int // booking id -> 1-based row
}

func NewSheetsService(api ValuesAPI, sheetName string, logger zerolog.Logger) *SheetsService {
	if sheetName == "" {
		sheetName = "Bookings"
	}
	return &SheetsService{
		api:       api,
		sheetName: sheetName,
		logger:    logger.With().Str("component", "sheets").Logger(),
		now:       time.Now,
		rowCache:  make(map[string]int),
	}
}

// EnsureHeader writes the header row when the sheet is empty.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	rows, err := s.api.Get(ctx, s.sheetName+"!A1:J1")
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		return nil
	}
	return s.api.Update(ctx, s.sheetName+"!A1:J1", [][]any{Header})
}

// Deliver upserts the booking row carried by a test_drive.* event.
// It satisfies events.SinkFunc.
func (s *SheetsService) Deliver(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.TestDriveBooked, events.TestDriveCancelled, events.TestDriveStatusChanged:
	default:
		return nil
	}

	var p events.BookingPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode booking payload: %w", err)
	}
	return s.UpsertBooking(ctx, p)
}

// UpsertBooking rewrites the booking's row, appending one if it is not in the sheet yet.
func (s *SheetsService) UpsertBooking(ctx context.Context, p events.BookingPayload) error {
	values := bookingRowValues(p, s.now())

	row, err := s.findRow(ctx, p.BookingID)
	if err != nil {
		return err
	}
	if row == 0 {
		if err := s.api.Append(ctx, s.sheetName+"!A:J", [][]any{values}); err != nil {
			return fmt.Errorf("append booking %s: %w", p.BookingID, err)
		}
		s.logger.Debug().Str("booking_id", p.BookingID).Msg("booking row appended")
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:J%d", s.sheetName, row, row)
	if err := s.api.Update(ctx, rng, [][]any{values}); err != nil {
		s.deleteCacheRow(p.BookingID)
		return fmt.Errorf("update booking %s: %w", p.BookingID, err)
	}
	s.logger.Debug().Str("booking_id", p.BookingID).Int("row", row).Msg("booking row updated")
	return nil
}

// findRow returns the 1-based row holding bookingID, or 0 when absent.
func (s *SheetsService) findRow(ctx context.Context, bookingID string) (int, error) {
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	ids, err := s.api.Get(ctx, s.sheetName+"!A:A")
	if err != nil {
		return 0, fmt.Errorf("read booking ids: %w", err)
	}
	for i, r := range ids {
		if len(r) == 0 {
			continue
		}
		if id, _ := r[0].(string); id != "" {
			s.setCachedRow(id, i+1)
		}
	}

	row, _ := s.getCachedRow(bookingID)
	return row, nil
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.mu.Lock()
	s.rowCache[id] = row
	s.mu.Unlock()
}

func (s *SheetsService) deleteCacheRow(id string) {
	s.mu.Lock()
	delete(s.rowCache, id)
	s.mu.Unlock()
}

// ClearCache forgets every known row position.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	s.rowCache = make(map[string]int)
	s.mu.Unlock()
}

func bookingRowValues(p events.BookingPayload, updated time.Time) []any {
	return []any{
		p.BookingID,
		p.BookingDate,
		p.StartTime,
		p.EndTime,
		p.CarName,
		p.CarID,
		p.UserName,
		p.UserEmail,
		p.Status,
		updated.UTC().Format("2006-01-02 15:04:05"),
	}
}

// valuesClient adapts the generated Sheets client to ValuesAPI.
type valuesClient struct {
	values        *sheetsapi.SpreadsheetsValuesService
	spreadsheetID string
}

// NewClient authenticates with a service-account key file.
func NewClient(ctx context.Context, credentialsFile, spreadsheetID string) (ValuesAPI, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheetsapi.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &valuesClient{values: srv.Spreadsheets.Values, spreadsheetID: spreadsheetID}, nil
}

func (c *valuesClient) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := c.values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *valuesClient) Append(ctx context.Context, rng string, rows [][]any) error {
	_, err := c.values.Append(c.spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	return err
}

func (c *valuesClient) Update(ctx context.Context, rng string, rows [][]any) error {
	_, err := c.values.Update(c.spreadsheetID, rng, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return err
}
