package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/errors"
)

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open creates the database file if needed and migrates the schema
func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	if path == "" {
		return errors.Newf("sqlite path is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				FileContext(path, 0).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig("sqlite"))
	if err != nil {
		return dbError(err, "open")
	}

	store.DB = db
	return performAutoMigration(db, "SQLite", path)
}

// Close closes the database connection
func (store *SQLiteStore) Close() error {
	err := closeDB(store.DB)
	store.DB = nil
	return err
}
