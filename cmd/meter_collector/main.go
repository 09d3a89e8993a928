// Responsible for storing the readings collected from the smart meter.
// Depends on the interpreter API being online.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/p1_mini/pkg/config"
	"github.com/NotCoffee418/p1_mini/pkg/interpreter"
	"github.com/NotCoffee418/p1_mini/pkg/logging"
	"github.com/NotCoffee418/p1_mini/pkg/meterdb"
	"github.com/NotCoffee418/p1_mini/pkg/pathing"
	"go.uber.org/zap"
)

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	if err := config.LoadMeterCollectorConfig(); err != nil {
		log.Fatalf("Failed to load meter collector config: %v", err)
	}
	cfg := config.ActiveMeterCollectorConfig

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	meterdb.SetDatabasePath(cfg.DatabasePath)
	if err := meterdb.InitializeDatabase(); err != nil {
		logger.Fatal("Failed to initialize database", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscribe to websocket with revive
	url := interpreter.ListenerURL(cfg.InterpreterAPIHost, cfg.TLSEnabled)
	if err := interpreter.StartListener(ctx, url, logger, func(reading *interpreter.Reading) {
		handleMeterReading(reading, logger)
	}); err != nil {
		logger.Fatal("Listener stopped", zap.Error(err))
	}
}

// Handle meter reading data
func handleMeterReading(reading *interpreter.Reading, logger *zap.Logger) {
	err := meterdb.InsertReading(&meterdb.MeterDbReading{
		Timestamp: reading.Timestamp,
		Name:      reading.Name,
		Obis:      reading.Obis,
		Value:     reading.Value,
		Unit:      reading.Unit,
	})
	if err != nil {
		logger.Error("Failed to store reading", zap.String("name", reading.Name), zap.Error(err))
		return
	}
	logger.Debug("Reading stored", zap.String("name", reading.Name), zap.Float64("value", reading.Value))
}
