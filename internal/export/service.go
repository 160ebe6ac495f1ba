// Package export renders the store as an xlsx workbook for admins.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TableSource provides access to database tables for export.
type TableSource interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, table string) ([]map[string]any, []string, error)
}

// DocumentSender delivers a finished report.
type DocumentSender interface {
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error
}

type Service struct {
	source TableSource
	sender DocumentSender // optional
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(source TableSource, sender DocumentSender, logger zerolog.Logger) *Service {
	return &Service{
		source: source,
		sender: sender,
		logger: logger.With().Str("component", "export").Logger(),
		now:    time.Now,
	}
}

// Workbook writes every export table as its own sheet.
func (s *Service) Workbook(ctx context.Context) ([]byte, error) {
	tables, err := s.source.GetTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}

	xl := NewExcelWriter()
	defer xl.Close()

	for _, table := range tables {
		rows, columns, err := s.source.GetTableData(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}
		if err := xl.AddSheet(table); err != nil {
			return nil, err
		}
		if err := xl.WriteHeader(columns); err != nil {
			return nil, err
		}
		for _, row := range rows {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := xl.WriteRow(values); err != nil {
				return nil, fmt.Errorf("write %s row: %w", table, err)
			}
		}
		s.logger.Debug().Str("table", table).Int("rows", len(rows)).Msg("exported table")
	}

	var buf bytes.Buffer
	if err := xl.Save(&buf); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename names a workbook produced at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("vehiql_%s.xlsx", t.Format("2006-01-02"))
}

// SendReport builds the workbook and hands it to the document sender.
func (s *Service) SendReport(ctx context.Context) error {
	if s.sender == nil {
		return nil
	}
	data, err := s.Workbook(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	caption := fmt.Sprintf("Monthly report %s", now.AddDate(0, -1, 0).Format("January 2006"))
	if err := s.sender.SendDocument(ctx, Filename(now), data, caption); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	s.logger.Info().Str("filename", Filename(now)).Msg("report sent")
	return nil
}

// RunMonthly sends a report shortly after midnight on the first of every month.
func (s *Service) RunMonthly(ctx context.Context) {
	for {
		next := nextFirstOfMonth(s.now())
		s.logger.Info().Time("at", next).Msg("next report scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
			if err := s.SendReport(runCtx); err != nil {
				s.logger.Error().Err(err).Msg("monthly report failed")
			}
			cancel()
		}
	}
}

func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}
