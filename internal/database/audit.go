package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// ExportTables are the tables included in the admin workbook, in sheet order.
var ExportTables = []string{
	"test_drive_bookings",
	"cars",
	"users",
	"working_hours",
	"dealership_info",
}

func (db *DB) GetTableNames(_ context.Context) ([]string, error) {
	return slices.Clone(ExportTables), nil
}

// GetTableData returns every row of an export table keyed by column name.
func (db *DB) GetTableData(ctx context.Context, table string) ([]map[string]any, []string, error) {
	if !slices.Contains(ExportTables, table) {
		return nil, nil, fmt.Errorf("invalid table name: %s", table)
	}

	columns, err := db.tableColumns(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY created_at", table))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, columns, rows.Err()
}

func (db *DB) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid, notNull, pk int
		var name, typeName string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typeName, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table)
	}
	return columns, rows.Err()
}
