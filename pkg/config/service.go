package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/p1_mini/pkg/pathing"
)

var (
	ActiveInterpreterAPIConfig *InterpreterAPIConfig
	ActiveMeterCollectorConfig *MeterCollectorConfig
)

var ErrInvalidConfig = errors.New("invalid configuration")

func DefaultInterpreterAPIConfig() *InterpreterAPIConfig {
	return &InterpreterAPIConfig{
		SerialDevice:          "/dev/ttyUSB0",
		Baudrate:              115200,
		SecondarySerialDevice: "/dev/ttyUSB1",
		MinimumPeriodMs:       0,
		BufferSize:            2048,
		TickIntervalMs:        10,
		ListenAddress:         "0.0.0.0",
		ListenPort:            9039,
		LogLevel:              "info",
		MQTT: MQTTConfig{
			Port:      1883,
			BaseTopic: "p1_mini",
		},
		Sensors: []SensorConfig{
			{Name: "energy_consumed", ObisCode: "1.8.0", Unit: "kWh"},
			{Name: "energy_produced", ObisCode: "2.8.0", Unit: "kWh"},
			{Name: "power_consumed", ObisCode: "1.7.0", Unit: "kW"},
			{Name: "power_produced", ObisCode: "2.7.0", Unit: "kW"},
			{Name: "voltage_l1", ObisCode: "32.7.0", Unit: "V"},
			{Name: "current_l1", ObisCode: "31.7.0", Unit: "A"},
		},
	}
}

func DefaultMeterCollectorConfig() *MeterCollectorConfig {
	return &MeterCollectorConfig{
		InterpreterAPIHost: "localhost:9039",
		TLSEnabled:         false,
		DatabasePath:       pathing.GetMeterDbPath(),
		LogLevel:           "info",
	}
}

func LoadInterpreterAPIConfig() error {
	cfg, err := LoadInterpreterAPIConfigFrom(filepath.Join(pathing.GetConfigDir(), "interpreter_api.toml"))
	if err != nil {
		return err
	}
	ActiveInterpreterAPIConfig = cfg
	return nil
}

// LoadInterpreterAPIConfigFrom reads the config at configPath, writing the
// defaults there first if the file does not exist.
func LoadInterpreterAPIConfigFrom(configPath string) (*InterpreterAPIConfig, error) {
	cfg := DefaultInterpreterAPIConfig()
	defaults := cfg.Sensors
	// Sensors from the file replace the defaults instead of merging with them
	cfg.Sensors = nil
	md, err := loadOrCreate(configPath, cfg, func() { cfg.Sensors = defaults })
	if err != nil {
		return nil, err
	}
	if !md.IsDefined("sensor") {
		cfg.Sensors = defaults
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

func LoadMeterCollectorConfig() error {
	cfg, err := LoadMeterCollectorConfigFrom(filepath.Join(pathing.GetConfigDir(), "meter_collector.toml"))
	if err != nil {
		return err
	}
	ActiveMeterCollectorConfig = cfg
	return nil
}

func LoadMeterCollectorConfigFrom(configPath string) (*MeterCollectorConfig, error) {
	cfg := DefaultMeterCollectorConfig()
	if _, err := loadOrCreate(configPath, cfg, nil); err != nil {
		return nil, err
	}
	if cfg.InterpreterAPIHost == "" {
		return nil, fmt.Errorf("%s: %w: interpreter_api_host is empty", configPath, ErrInvalidConfig)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = pathing.GetMeterDbPath()
	}
	return cfg, nil
}

// Validate checks the values the decoder and server cannot start with.
func (c *InterpreterAPIConfig) Validate() error {
	switch {
	case c.SerialDevice == "":
		return fmt.Errorf("%w: serial_device is empty", ErrInvalidConfig)
	case c.Baudrate == 0:
		return fmt.Errorf("%w: baudrate is 0", ErrInvalidConfig)
	case c.SecondaryP1 && c.SecondarySerialDevice == "":
		return fmt.Errorf("%w: secondary_p1 requires secondary_serial_device", ErrInvalidConfig)
	case c.MinimumPeriodMs < 0:
		return fmt.Errorf("%w: minimum_period_ms is negative", ErrInvalidConfig)
	case c.TickIntervalMs <= 0:
		return fmt.Errorf("%w: tick_interval_ms must be positive", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		if s.Name == "" {
			return fmt.Errorf("%w: sensor for '%s' has no name", ErrInvalidConfig, s.ObisCode)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate sensor name '%s'", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// loadOrCreate decodes configPath over cfg. A missing file is created from
// cfg after calling fill (if set) to complete the defaults.
func loadOrCreate(configPath string, cfg any, fill func()) (toml.MetaData, error) {
	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if fill != nil {
			fill()
		}
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return toml.MetaData{}, err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return toml.MetaData{}, err
		}
		return toml.MetaData{}, nil
	}

	// Load existing config over the defaults
	return toml.DecodeFile(configPath, cfg)
}
