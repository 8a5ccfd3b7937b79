package core

import "database/sql"

// scanValues reads the current row. Byte slices become strings so that text
// columns look the same on every driver.
func scanValues(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}

func scanRow(rows *sql.Rows, columns []string) (Row, error) {
	values, err := scanValues(rows, len(columns))
	if err != nil {
		return nil, err
	}
	row := make(Row, len(columns))
	for i, name := range columns {
		row[name] = values[i]
	}
	return row, nil
}

func scanAll(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := []Row{}
	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, nil
}

func scanOne(rows *sql.Rows) (Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, nil
	}
	return scanRow(rows, columns)
}

func scanFirstValues(rows *sql.Rows) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, nil
	}
	return scanValues(rows, len(columns))
}

func scanColumn(rows *sql.Rows) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := []any{}
	for rows.Next() {
		values, err := scanValues(rows, len(columns))
		if err != nil {
			return nil, err
		}
		result = append(result, values[0])
	}
	return result, nil
}
