package config

type MeterCollectorConfig struct {
	InterpreterAPIHost string `toml:"interpreter_api_host"`
	TLSEnabled         bool   `toml:"tls_enabled"`
	// Empty uses the default path in the data directory
	DatabasePath string `toml:"database_path"`
	LogLevel     string `toml:"log_level"`
}

type InterpreterAPIConfig struct {
	SerialDevice string `toml:"serial_device"`
	Baudrate     uint   `toml:"baudrate"`
	// Forward every received byte to a second serial port
	SecondaryP1           bool           `toml:"secondary_p1"`
	SecondarySerialDevice string         `toml:"secondary_serial_device"`
	MinimumPeriodMs       int            `toml:"minimum_period_ms"`
	BufferSize            int            `toml:"buffer_size"`
	TickIntervalMs        int            `toml:"tick_interval_ms"`
	ListenAddress         string         `toml:"listen_address"`
	ListenPort            int            `toml:"listen_port"`
	LogLevel              string         `toml:"log_level"`
	MQTT                  MQTTConfig     `toml:"mqtt"`
	Sensors               []SensorConfig `toml:"sensor"`
}

// MQTTConfig is disabled when Host is empty.
type MQTTConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	BaseTopic string `toml:"base_topic"`
}

type SensorConfig struct {
	Name     string `toml:"name"`
	ObisCode string `toml:"obis_code"`
	Unit     string `toml:"unit"`
}
