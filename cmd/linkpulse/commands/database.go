package commands

import (
	"database/sql"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/db"
	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/logger"
)

// openDatabase opens and migrates the database at dbPath. If dbPath is
// empty the configured path is used.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := am.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		dbPath = cfg.Database.Path
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}
