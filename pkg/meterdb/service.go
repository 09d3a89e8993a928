// MeterDB contains the readings collected from the interpreter API.
// It should only be written to by meter_collector but can be read by any
// service.
package meterdb

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/NotCoffee418/p1_mini/pkg/pathing"

	_ "modernc.org/sqlite"
)

var (
	db     *sql.DB
	dbErr  error
	once   sync.Once
	dbPath = pathing.GetMeterDbPath()
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SetDatabasePath overrides the database location. Must be called before the
// first GetDB.
func SetDatabasePath(path string) {
	dbPath = path
}

// InitializeDatabase must be called manually on startup.
func InitializeDatabase() error {
	// Create DB before migrations
	db, err := GetDB()
	if err != nil {
		return err
	}
	if _, err := db.Exec("SELECT 1;"); err != nil {
		return fmt.Errorf("could not create database: %w", err)
	}

	// Apply migrations
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)
	return nil
}

func GetDB() (*sql.DB, error) {
	once.Do(func() {
		db, dbErr = sql.Open("sqlite", dbPath)
		if dbErr != nil {
			return
		}
		// Verify connection
		dbErr = db.Ping()
	})
	return db, dbErr
}
