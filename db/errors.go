package db

import (
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/linkpulse/linkpulse/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed
// database, typically during shutdown while a job run is still in flight.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is
// closed. The driver returns its own error values, so raw messages are
// matched as well as the wrapped sentinel.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// IsBusy reports whether err is SQLite's busy or locked condition, which
// clears once the competing writer commits.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
