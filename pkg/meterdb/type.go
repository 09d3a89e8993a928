package meterdb

// MeterDbReading is one stored sensor reading.
type MeterDbReading struct {
	Timestamp int64   `db:"timestamp"`
	Name      string  `db:"name"`
	Obis      string  `db:"obis"`
	Value     float64 `db:"value"`
	Unit      string  `db:"unit"`
}
