package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that lexical order of stored timestamps is
// chronological order; range filters and ORDER BY rely on it.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func Open(dataDir string) (*sql.DB, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return OpenFile(filepath.Join(dbDir, "medialink.db"))
}

func OpenFile(dbPath string) (*sql.DB, error) {
	database, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-20000",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			database.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	database.SetMaxOpenConns(1)

	return database, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// SQLiteTime scans TEXT timestamps written either by this package or by
// column defaults.
type SQLiteTime struct {
	Time  time.Time
	Valid bool
}

func (st *SQLiteTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		st.Time, st.Valid = time.Time{}, false
	case string:
		return st.parse(v)
	case []byte:
		return st.parse(string(v))
	case time.Time:
		st.Time, st.Valid = v.UTC(), true
	case int64:
		st.Time, st.Valid = time.Unix(v, 0).UTC(), true
	default:
		return fmt.Errorf("SQLiteTime: unsupported type %T", src)
	}
	return nil
}

func (st *SQLiteTime) parse(v string) error {
	for _, f := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		t, err := time.Parse(f, v)
		if err == nil {
			st.Time, st.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("SQLiteTime: cannot parse %q", v)
}
