// Interpreter API reads the P1 port, decodes the telegrams and broadcasts the
// configured sensor readings over websocket and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/config"
	"github.com/NotCoffee418/p1_mini/pkg/interpreter"
	"github.com/NotCoffee418/p1_mini/pkg/logging"
	"github.com/NotCoffee418/p1_mini/pkg/mqttsink"
	"github.com/NotCoffee418/p1_mini/pkg/obis"
	"github.com/NotCoffee418/p1_mini/pkg/pathing"
	"github.com/NotCoffee418/p1_mini/pkg/port_reader"
	"github.com/NotCoffee418/p1_mini/pkg/telegram"
	"go.uber.org/zap"
)

const mqttConnectTimeout = 10 * time.Second

func main() {
	// Load config
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	if err := config.LoadInterpreterAPIConfig(); err != nil {
		log.Fatalf("Failed to load interpreter API config: %v", err)
	}
	cfg := config.ActiveInterpreterAPIConfig

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Interpreter API stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.InterpreterAPIConfig, logger *zap.Logger) error {
	// Start P1 reader
	source, err := port_reader.Open(cfg.SerialDevice, cfg.Baudrate, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	var passthrough io.Writer
	if cfg.SecondaryP1 {
		secondary, err := port_reader.OpenPort(cfg.SecondarySerialDevice, cfg.Baudrate)
		if err != nil {
			return err
		}
		defer secondary.Close()
		passthrough = secondary
	}

	decoder, err := telegram.NewDecoder(telegram.Config{
		MinPeriod:   time.Duration(cfg.MinimumPeriodMs) * time.Millisecond,
		BufferSize:  cfg.BufferSize,
		Passthrough: passthrough,
		Logger:      logger,
	}, source)
	if err != nil {
		return err
	}

	store := interpreter.NewStore()
	hub := interpreter.NewHub(store, logger)
	publishers := []interpreter.Publisher{store, hub}

	if cfg.MQTT.Host != "" {
		mqttPublisher := mqttsink.New(cfg.MQTT, logger)
		if err := mqttPublisher.Connect(mqttConnectTimeout); err != nil {
			// Auto reconnect keeps trying in the background
			logger.Warn("MQTT broker not reachable", zap.Error(err))
		}
		defer mqttPublisher.Disconnect(time.Second)
		publishers = append(publishers, mqttPublisher)
	}

	for _, s := range cfg.Sensors {
		sensor := interpreter.NewSensor(s.Name, obis.Parse(s.ObisCode), s.Unit, publishers...)
		if code := decoder.RegisterSensor(s.ObisCode, sensor); code.Valid() {
			logger.Info("Sensor registered", zap.String("name", s.Name), zap.Stringer("obis", code))
		}
	}

	decoder.OnReadyToReceive(func() { logger.Debug("Ready to receive") })
	decoder.OnUpdateReceived(func() { logger.Debug("Telegram received") })
	decoder.OnCommunicationError(func() { logger.Debug("Communication error") })
	decoder.DumpConfig()

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	server := &http.Server{Addr: listener, Handler: hub.Handler()}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting P1 Mini Interpreter API", zap.String("listen", listener))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	decoderDone := make(chan struct{})
	go func() {
		defer close(decoderDone)
		decoder.Run(ctx, time.Duration(cfg.TickIntervalMs)*time.Millisecond)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case <-source.Done():
		cancel()
		err = fmt.Errorf("P1 port closed: %w", source.Err())
	case err = <-serverErr:
		cancel()
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	server.Shutdown(shutdownCtx)
	<-decoderDone
	logger.Info("Final statistics", zap.Stringer("stats", decoder.Stats()))
	return err
}
