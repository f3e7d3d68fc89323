package data

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/atomicbase/directory/tools"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// sqliteDriverName is go-sqlite3 with the math functions the distance
// expression needs registered on every connection.
const sqliteDriverName = "sqlite3_directory"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: registerMathFunctions,
	})
}

func registerMathFunctions(conn *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		fn   func(float64) float64
	}{
		{"acos", acosClamped},
		{"sin", math.Sin},
		{"cos", math.Cos},
		{"radians", func(deg float64) float64 { return deg * math.Pi / 180 }},
	}

	for _, f := range funcs {
		fn := f.fn
		// NULL input yields NaN, which SQLite stores as NULL
		if err := conn.RegisterFunc(f.name, func(v any) float64 {
			x, ok := toFloat64(v)
			if !ok {
				return math.NaN()
			}
			return fn(x)
		}, true); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	return nil
}

// acosClamped keeps floating point drift at identical points from producing NaN.
func acosClamped(x float64) float64 {
	return math.Acos(math.Max(-1, math.Min(1, x)))
}

// Open connects to the store selected by driver.
func Open(ctx context.Context, driver, dsn string) (*Database, error) {
	var name string
	var dialect Dialect

	switch driver {
	case DriverSQLite, "":
		name, dialect = sqliteDriverName, SQLite
	case DriverLibSQL:
		name, dialect = "libsql", SQLite
	case DriverPostgres:
		name, dialect = "pgx", Postgres
	default:
		return nil, tools.UnknownDriverErr(driver)
	}

	client, err := sql.Open(name, dsn)
	if err != nil {
		return nil, err
	}

	// Every pooled connection to :memory: would be a separate database
	if name == sqliteDriverName && strings.Contains(dsn, ":memory:") {
		client.SetMaxOpenConns(1)
	}

	if err := client.PingContext(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return &Database{Client: client, Exec: client, Dialect: dialect}, nil
}

// Close releases the connection pool.
func (dao *Database) Close() error {
	return dao.Client.Close()
}

// toFloat64 converts a driver value into a float.
func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toInt64 converts a driver value into an integer.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
