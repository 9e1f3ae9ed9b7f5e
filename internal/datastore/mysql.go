package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/urbansound/soundscape/internal/conf"
	"github.com/urbansound/soundscape/internal/logger"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func (store *MySQLStore) dsn() string {
	m := store.Settings.Output.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// Open connects to MySQL and migrates the schema
func (store *MySQLStore) Open() error {
	m := store.Settings.Output.MySQL

	db, err := gorm.Open(mysql.Open(store.dsn()), gormConfig("mysql"))
	if err != nil {
		GetLogger().Error("failed to open MySQL database",
			logger.String("host", m.Host),
			logger.String("port", m.Port),
			logger.String("database", m.Database),
			logger.Error(err))
		return dbError(err, "open")
	}

	store.DB = db
	// The DSN carries the password, log only the address.
	return performAutoMigration(db, "MySQL", fmt.Sprintf("%s:%s/%s", m.Host, m.Port, m.Database))
}

// Close closes the database connection
func (store *MySQLStore) Close() error {
	err := closeDB(store.DB)
	store.DB = nil
	return err
}
