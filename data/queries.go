package data

import (
	"context"
	"database/sql"
	"fmt"
)

// executor returns the configured Executor, falling back to the pool.
func (dao *Database) executor() Executor {
	if dao.Exec != nil {
		return dao.Exec
	}
	return dao.Client
}

func (dao *Database) query(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	bound, err := dao.Dialect.Rebind(query)
	if err != nil {
		return nil, err
	}
	return QueryContextWithRetry(ctx, dao.executor(), bound, args...)
}

// QueryRows executes a query and returns results as a slice of maps.
func (dao *Database) QueryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := dao.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	count := len(columnTypes)
	finalRows := []Row{}

	for rows.Next() {
		scanArgs := make([]any, count)

		for i, v := range columnTypes {
			// doesnt use scanType to support more sqlite drivers
			switch v.DatabaseTypeName() {
			case "TEXT", "VARCHAR":
				scanArgs[i] = new(sql.NullString)
			case "INTEGER", "INT8", "INT4", "BIGINT":
				scanArgs[i] = new(sql.NullInt64)
			case "REAL", "FLOAT8", "NUMERIC":
				scanArgs[i] = new(sql.NullFloat64)
			default:
				// computed columns carry no declared type
				scanArgs[i] = new(any)
			}
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}

		row := make(Row, count)

		for i, v := range columnTypes {
			switch z := scanArgs[i].(type) {
			case *sql.NullString:
				row[v.Name()] = nullable(z.Valid, z.String)
			case *sql.NullInt64:
				row[v.Name()] = nullable(z.Valid, z.Int64)
			case *sql.NullFloat64:
				row[v.Name()] = nullable(z.Valid, z.Float64)
			case *any:
				if b, ok := (*z).([]byte); ok {
					row[v.Name()] = string(b)
				} else {
					row[v.Name()] = *z
				}
			}
		}

		finalRows = append(finalRows, row)
	}

	return finalRows, rows.Err()
}

func nullable[T any](valid bool, v T) any {
	if !valid {
		return nil
	}
	return v
}

// QueryScored reads (id[, score]) rows in result order.
func (dao *Database) QueryScored(ctx context.Context, query string, args ...any) ([]Scored, error) {
	rows, err := dao.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Scored
	for rows.Next() {
		dest := make([]any, len(cols))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		id, ok := toInt64(*dest[0].(*any))
		if !ok {
			return nil, fmt.Errorf("non-numeric entry id %v", *dest[0].(*any))
		}
		s := Scored{ID: id}
		if len(cols) > 1 {
			if f, ok := toFloat64(*dest[1].(*any)); ok {
				s.Score = &f
			}
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

// QueryCount runs a single-value aggregate query.
func (dao *Database) QueryCount(ctx context.Context, query string, args ...any) (int64, error) {
	rows, err := dao.query(ctx, query, args)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return 0, err
		}
		n, _ = toInt64(v)
	}
	return n, rows.Err()
}

// ExecStatement runs a write statement and returns the generated row id when the driver reports one.
func (dao *Database) ExecStatement(ctx context.Context, query string, args ...any) (int64, error) {
	bound, err := dao.Dialect.Rebind(query)
	if err != nil {
		return 0, err
	}
	res, err := ExecContextWithRetry(ctx, dao.executor(), bound, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		// pgx does not support LastInsertId
		return 0, nil
	}
	return id, nil
}
